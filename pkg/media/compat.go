package media

import (
	"context"
	"sync"
)

// RangeArrayer is implemented by range objects that already provide an
// ordered view of themselves.
type RangeArrayer interface {
	AsArray() []TimeRange
}

// TrackElement is a <track> element wrapper; Track returns the underlying text track.
type TrackElement interface {
	Track() TextTrack
}

type TrackModeAccessor interface {
	Mode(ctx context.Context, el TrackElement) (TrackMode, error)
	SetMode(ctx context.Context, el TrackElement, mode TrackMode) error
}

// UserMediaFunc is the modern capture API: one call, one result.
type UserMediaFunc func(ctx context.Context, c Constraints) (Stream, error)

// LegacyUserMediaFunc is the callback style vendor prefixed capture API.
type LegacyUserMediaFunc func(c Constraints, onSuccess func(Stream), onError func(error))

// Natives lists what the host provides itself. Nil fields are synthesised.
type Natives struct {
	RangeView       func(TimeRanges) []TimeRange
	TrackMode       TrackModeAccessor
	UserMedia       UserMediaFunc
	LegacyUserMedia LegacyUserMediaFunc
}

// Compat holds the compatibility accessors. Install it once at startup and
// share it; installing again leaves already installed accessors untouched.
type Compat struct {
	mu        sync.RWMutex
	rangeView func(TimeRanges) []TimeRange
	trackMode TrackModeAccessor
	userMedia UserMediaFunc
}

func NewCompat(natives Natives) *Compat {
	c := &Compat{}
	c.Install(natives)
	return c
}

func (c *Compat) Install(natives Natives) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rangeView == nil {
		if natives.RangeView != nil {
			c.rangeView = natives.RangeView
		} else {
			c.rangeView = indexedRangeView
		}
	}
	if c.trackMode == nil {
		if natives.TrackMode != nil {
			c.trackMode = natives.TrackMode
		} else {
			c.trackMode = forwardingTrackMode{}
		}
	}
	if c.userMedia == nil {
		c.userMedia = SynthesizeUserMedia(natives.UserMedia, natives.LegacyUserMedia)
	}
}

// RangeView returns the ranges as an ordered sequence, ascending by index.
func (c *Compat) RangeView(r TimeRanges) []TimeRange {
	if r == nil {
		return nil
	}
	if arr, ok := r.(RangeArrayer); ok {
		return arr.AsArray()
	}
	c.mu.RLock()
	view := c.rangeView
	c.mu.RUnlock()
	if view == nil {
		view = indexedRangeView
	}
	return view(r)
}

func (c *Compat) TrackMode(ctx context.Context, el TrackElement) (TrackMode, error) {
	return c.trackModeAccessor().Mode(ctx, el)
}

func (c *Compat) SetTrackMode(ctx context.Context, el TrackElement, mode TrackMode) error {
	return c.trackModeAccessor().SetMode(ctx, el, mode)
}

func (c *Compat) UserMedia(ctx context.Context, constraints Constraints) (Stream, error) {
	c.mu.RLock()
	fn := c.userMedia
	c.mu.RUnlock()
	if fn == nil {
		return nil, ErrNotImplemented
	}
	return fn(ctx, constraints)
}

func (c *Compat) trackModeAccessor() TrackModeAccessor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.trackMode == nil {
		return forwardingTrackMode{}
	}
	return c.trackMode
}

func indexedRangeView(r TimeRanges) []TimeRange {
	arr, err := DecodeTimeRanges(r)
	if err != nil {
		return []TimeRange{}
	}
	return arr
}

// trackOf presents a bare text track as a track element.
type trackOf struct {
	track TextTrack
}

func (t trackOf) Track() TextTrack { return t.track }

func asTrackElement(track TextTrack) TrackElement {
	if el, ok := track.(TrackElement); ok {
		return el
	}
	return trackOf{track: track}
}

// forwardingTrackMode uses the element's own mode if it has one and the
// underlying track's mode otherwise.
type forwardingTrackMode struct{}

func (forwardingTrackMode) Mode(ctx context.Context, el TrackElement) (TrackMode, error) {
	if own, ok := el.(TextTrack); ok {
		return own.Mode(ctx)
	}
	return el.Track().Mode(ctx)
}

func (forwardingTrackMode) SetMode(ctx context.Context, el TrackElement, mode TrackMode) error {
	if own, ok := el.(TextTrack); ok {
		return own.SetMode(ctx, mode)
	}
	return el.Track().SetMode(ctx, mode)
}
