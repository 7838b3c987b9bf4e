package mediatest

import (
	"context"
	"sync"

	"emperror.dev/errors"
	"github.com/je4/mediaport/pkg/media"
)

type PlayBehavior int

const (
	// PlayResolves answers play() with a completion that resolves.
	PlayResolves PlayBehavior = iota
	// PlayRejects answers play() with a completion that rejects with RejectReason.
	PlayRejects
	// PlaySync answers play() without a completion, like old browsers.
	PlaySync
	// PlayPending answers play() with a completion resolved by Resolve or Reject.
	PlayPending
)

// Element is a recording media element.
type Element struct {
	mu           sync.Mutex
	id           string
	kind         string
	currentTime  float64
	duration     float64
	paused       bool
	tracks       []*Track
	canPlay      map[string]string
	calls        []string
	stream       media.Stream
	Behavior     PlayBehavior
	RejectReason string
	HostErr      error
	Buffered     media.TimeRanges
	pending      chan error
}

func NewVideo(id string) *Element {
	return &Element{id: id, kind: "VIDEO", paused: true, canPlay: map[string]string{}}
}

func NewAudio(id string) *Element {
	return &Element{id: id, kind: "AUDIO", paused: true, canPlay: map[string]string{}}
}

func (e *Element) ID() string   { return e.id }
func (e *Element) Kind() string { return e.kind }

func (e *Element) record(call string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
	return e.HostErr
}

// Calls returns the native operations invoked so far.
func (e *Element) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *Element) Play(context.Context) (media.Completion, error) {
	if err := e.record("play"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.Behavior {
	case PlaySync:
		e.paused = false
		return nil, nil
	case PlayRejects:
		ch := make(chan error, 1)
		ch <- errors.New(e.RejectReason)
		return ch, nil
	case PlayPending:
		e.pending = make(chan error, 1)
		return e.pending, nil
	default:
		e.paused = false
		ch := make(chan error, 1)
		ch <- nil
		return ch, nil
	}
}

// Resolve settles a pending play request successfully.
func (e *Element) Resolve() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		e.paused = false
		e.pending <- nil
		e.pending = nil
	}
}

// Reject settles a pending play request with reason.
func (e *Element) Reject(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		e.pending <- errors.New(reason)
		e.pending = nil
	}
}

func (e *Element) Pause(context.Context) error {
	if err := e.record("pause"); err != nil {
		return err
	}
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	return nil
}

func (e *Element) Load(context.Context) error {
	if err := e.record("load"); err != nil {
		return err
	}
	e.mu.Lock()
	e.currentTime = 0
	e.mu.Unlock()
	return nil
}

func (e *Element) CurrentTime(context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime, nil
}

func (e *Element) SetCurrentTime(_ context.Context, t float64) error {
	if err := e.record("seek"); err != nil {
		return err
	}
	e.mu.Lock()
	e.currentTime = t
	e.mu.Unlock()
	return nil
}

// Paused reports whether the element is paused.
func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Time returns the current playback position without recording a call.
func (e *Element) Time() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime
}

func (e *Element) SetDuration(d float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.duration = d
}

// SetCanPlay fixes the canPlayType answer for mimeType.
func (e *Element) SetCanPlay(mimeType, answer string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.canPlay[mimeType] = answer
}

func (e *Element) CanPlayType(_ context.Context, mimeType string) (string, error) {
	if err := e.record("canPlayType"); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canPlay[mimeType], nil
}

func (e *Element) AddTrack(mode media.TrackMode) *Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := &Track{mode: mode}
	e.tracks = append(e.tracks, t)
	return t
}

func (e *Element) TextTracks(context.Context) ([]media.TextTrack, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tracks := make([]media.TextTrack, 0, len(e.tracks))
	for _, t := range e.tracks {
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (e *Element) Snapshot(context.Context) (*media.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	buffered := e.Buffered
	if buffered == nil {
		buffered = media.RangeSlice{}
	}
	return &media.Snapshot{
		CurrentTime: e.currentTime,
		Duration:    e.duration,
		Paused:      e.paused,
		Ended:       e.duration > 0 && e.currentTime >= e.duration,
		Buffered:    buffered,
		Seekable:    media.RangeSlice{{Start: 0, End: e.duration}},
		Played:      media.RangeSlice{},
	}, nil
}

func (e *Element) AttachStream(_ context.Context, s media.Stream) error {
	if err := e.record("attach"); err != nil {
		return err
	}
	e.mu.Lock()
	e.stream = s
	e.mu.Unlock()
	return nil
}

// Stream returns the attached capture stream, if any.
func (e *Element) Stream() media.Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream
}

// FastSeekElement is an Element that also supports fastSeek.
type FastSeekElement struct {
	*Element
}

func NewFastSeekVideo(id string) *FastSeekElement {
	return &FastSeekElement{Element: NewVideo(id)}
}

func (e *FastSeekElement) FastSeek(_ context.Context, t float64) error {
	if err := e.record("fastSeek"); err != nil {
		return err
	}
	e.mu.Lock()
	e.currentTime = t
	e.mu.Unlock()
	return nil
}

type Track struct {
	mu   sync.Mutex
	mode media.TrackMode
}

func (t *Track) Mode(context.Context) (media.TrackMode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode, nil
}

func (t *Track) SetMode(_ context.Context, mode media.TrackMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mode = mode
	return nil
}

// Stream is a capture stream handle.
type Stream string

func (s Stream) StreamID() string { return string(s) }

var (
	_ media.MediaElement   = (*Element)(nil)
	_ media.StateReporter  = (*Element)(nil)
	_ media.StreamAttacher = (*Element)(nil)
	_ media.FastSeeker     = (*FastSeekElement)(nil)
	_ media.TextTrack      = (*Track)(nil)
	_ media.Stream         = Stream("")
)
