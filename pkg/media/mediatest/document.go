// Package mediatest provides an in-memory element registry and recording
// media elements for tests.
package mediatest

import (
	"context"
	"sync"

	"github.com/je4/mediaport/pkg/media"
)

// Document is an in-memory media.Registry.
type Document struct {
	mu       sync.Mutex
	elements map[string]media.Element
	lookups  []string
}

func NewDocument() *Document {
	return &Document{elements: map[string]media.Element{}}
}

func (d *Document) Add(el media.Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[el.ID()] = el
}

func (d *Document) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.elements, id)
}

func (d *Document) Lookup(_ context.Context, id string) (media.Element, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups = append(d.lookups, id)
	el, ok := d.elements[id]
	return el, ok, nil
}

// Lookups returns the ids looked up so far, in order.
func (d *Document) Lookups() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lookups...)
}

var _ media.Registry = (*Document)(nil)

// Node is a plain, non-media element.
type Node struct {
	NodeID   string
	NodeName string
}

func (n *Node) ID() string   { return n.NodeID }
func (n *Node) Kind() string { return n.NodeName }
