package media

import "context"

// Registry resolves element ids, like document.getElementById in a page.
type Registry interface {
	// Lookup returns the element registered under id. found is false if
	// there is none; err is reserved for host failures.
	Lookup(ctx context.Context, id string) (el Element, found bool, err error)
}

// Element is any node known to the registry.
type Element interface {
	ID() string
	// Kind is the node name, e.g. VIDEO or DIV.
	Kind() string
}

// Completion is the pending result of an asynchronous play request. It
// delivers exactly one value: nil on resolution, the rejection otherwise.
type Completion <-chan error

// MediaElement is the native capability of an audio or video element.
type MediaElement interface {
	Element
	// Play starts playback. A nil Completion means the host cannot
	// confirm asynchronously.
	Play(ctx context.Context) (Completion, error)
	Pause(ctx context.Context) error
	Load(ctx context.Context) error
	CurrentTime(ctx context.Context) (float64, error)
	SetCurrentTime(ctx context.Context, t float64) error
	// CanPlayType returns the raw host answer: "probably", "maybe" or "".
	CanPlayType(ctx context.Context, mimeType string) (string, error)
	TextTracks(ctx context.Context) ([]TextTrack, error)
}

type TextTrack interface {
	Mode(ctx context.Context) (TrackMode, error)
	SetMode(ctx context.Context, mode TrackMode) error
}

// FastSeeker is implemented by elements supporting approximate seeking.
type FastSeeker interface {
	FastSeek(ctx context.Context, t float64) error
}

// Snapshot is the raw state of an element as reported by the host.
type Snapshot struct {
	CurrentTime float64
	Duration    float64
	Paused      bool
	Ended       bool
	Buffered    any
	Seekable    any
	Played      any
}

type StateReporter interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Stream is an opaque capture stream handle.
type Stream interface {
	StreamID() string
}

type StreamAttacher interface {
	AttachStream(ctx context.Context, stream Stream) error
}
