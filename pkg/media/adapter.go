package media

import (
	"context"

	"emperror.dev/errors"
	"github.com/je4/utils/v2/pkg/zLogger"
)

// Adapter executes commands against the elements of a registry. It keeps no
// state between calls; every call resolves and validates its target again.
type Adapter struct {
	registry Registry
	compat   *Compat
	logger   zLogger.ZLogger
}

func NewAdapter(registry Registry, compat *Compat, logger zLogger.ZLogger) *Adapter {
	if compat == nil {
		compat = NewCompat(Natives{})
	}
	return &Adapter{
		registry: registry,
		compat:   compat,
		logger:   logger,
	}
}

func (a *Adapter) media(ctx context.Context, id string) (MediaElement, error) {
	el, found, err := a.registry.Lookup(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot look up node #%s", id)
	}
	if !found {
		a.logger.Debug().Msgf("node with id #%s not found", id)
		return nil, &NotFoundError{ID: id}
	}
	m, ok := el.(MediaElement)
	if !ok {
		a.logger.Debug().Msgf("node with id #%s is not a media element: %s", id, el.Kind())
		return nil, &NotMediaElementError{ID: id, Kind: el.Kind()}
	}
	return m, nil
}

// Execute runs one command and waits for its outcome. A nil error is
// success.
func (a *Adapter) Execute(ctx context.Context, cmd Command) error {
	pending, err := a.Start(ctx, cmd)
	if pending == nil {
		return err
	}
	return pending.Wait(ctx)
}

// Start runs one command without waiting for the host to confirm it. Only
// a play request can stay unconfirmed; its outcome is then delivered by the
// returned Pending and the error is nil.
func (a *Adapter) Start(ctx context.Context, cmd Command) (*Pending, error) {
	if u, ok := cmd.(Unknown); ok {
		a.logger.Debug().Msgf("ignoring unknown command %q for #%s", u.RawTag, u.ID)
		return nil, nil
	}
	m, err := a.media(ctx, cmd.TargetID())
	if err != nil {
		return nil, err
	}
	switch c := cmd.(type) {
	case Play:
		return a.play(ctx, c.ID, m)
	case Pause:
		return nil, errors.Wrapf(m.Pause(ctx), "cannot pause #%s", c.ID)
	case Seek:
		return nil, errors.Wrapf(m.SetCurrentTime(ctx, c.Time), "cannot seek #%s to %v", c.ID, c.Time)
	case FastSeek:
		fs, ok := m.(FastSeeker)
		if !ok {
			// no fallback to precise seeking
			a.logger.Debug().Msgf("fastSeek not supported by #%s", c.ID)
			return nil, nil
		}
		return nil, errors.Wrapf(fs.FastSeek(ctx, c.Time), "cannot fast seek #%s to %v", c.ID, c.Time)
	case Load:
		return nil, errors.Wrapf(m.Load(ctx), "cannot load #%s", c.ID)
	case ChangeTextTrackMode:
		return nil, a.changeTextTrackMode(ctx, c, m)
	case Capture:
		return nil, a.capture(ctx, c, m)
	default:
		return nil, errors.Errorf("unhandled command %T", cmd)
	}
}

// Pending is a play request the host has accepted but not confirmed yet.
type Pending struct {
	id         string
	completion Completion
	logger     zLogger.ZLogger
}

func (p *Pending) ID() string { return p.id }

// Wait blocks until the host settles the request or ctx is done.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case perr := <-p.completion:
		return p.settle(perr)
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "waiting for #%s to play", p.id)
	}
}

func (p *Pending) settle(perr error) error {
	if perr != nil {
		p.logger.Warn().Err(perr).Msgf("media element with id #%s failed to play", p.id)
		return &PlayRejectedError{ID: p.id, Reason: perr.Error()}
	}
	return nil
}

func (a *Adapter) play(ctx context.Context, id string, m MediaElement) (*Pending, error) {
	completion, err := m.Play(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot play #%s", id)
	}
	if completion == nil {
		a.logger.Info().Msg("HTMLMediaElement.play() does not return a promise in this browser.")
		return nil, nil
	}
	pending := &Pending{id: id, completion: completion, logger: a.logger}
	select {
	case perr := <-completion:
		return nil, pending.settle(perr)
	default:
		return pending, nil
	}
}

func (a *Adapter) changeTextTrackMode(ctx context.Context, c ChangeTextTrackMode, m MediaElement) error {
	tracks, err := m.TextTracks(ctx)
	if err != nil {
		return errors.Wrapf(err, "cannot get text tracks of #%s", c.ID)
	}
	if c.TrackNumber < 0 || c.TrackNumber >= len(tracks) {
		a.logger.Debug().Msgf("#%s has no text track %d", c.ID, c.TrackNumber)
		return nil
	}
	el := asTrackElement(tracks[c.TrackNumber])
	return errors.Wrapf(a.compat.SetTrackMode(ctx, el, c.Mode), "cannot set mode of text track %d of #%s", c.TrackNumber, c.ID)
}

func (a *Adapter) capture(ctx context.Context, c Capture, m MediaElement) error {
	attacher, ok := m.(StreamAttacher)
	if !ok {
		a.logger.Debug().Msgf("#%s cannot take a capture stream", c.ID)
		return nil
	}
	stream, err := a.compat.UserMedia(ctx, c.Constraints)
	if err != nil {
		a.logger.Warn().Err(err).Msgf("capture for #%s failed", c.ID)
		return &CaptureFailedError{ID: c.ID, Reason: err.Error()}
	}
	return errors.Wrapf(attacher.AttachStream(ctx, stream), "cannot attach stream %s to #%s", stream.StreamID(), c.ID)
}

func (a *Adapter) CanPlayType(ctx context.Context, id, mimeType string) (CanPlay, error) {
	m, err := a.media(ctx, id)
	if err != nil {
		return "", err
	}
	answer, err := m.CanPlayType(ctx, mimeType)
	if err != nil {
		return "", errors.Wrapf(err, "cannot query #%s for %s", id, mimeType)
	}
	return ParseCanPlay(answer)
}

type State struct {
	ID          string      `json:"id"`
	CurrentTime float64     `json:"currentTime"`
	Duration    float64     `json:"duration"`
	Paused      bool        `json:"paused"`
	Ended       bool        `json:"ended"`
	Buffered    []TimeRange `json:"buffered"`
	Seekable    []TimeRange `json:"seekable"`
	Played      []TimeRange `json:"played"`
	TextTracks  []TrackMode `json:"textTracks"`
}

// State reports the playback state of a media element. Elements that cannot
// report a full snapshot still report their current time.
func (a *Adapter) State(ctx context.Context, id string) (*State, error) {
	m, err := a.media(ctx, id)
	if err != nil {
		return nil, err
	}
	reporter, ok := m.(StateReporter)
	if !ok {
		t, err := m.CurrentTime(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot get current time of #%s", id)
		}
		return &State{ID: id, CurrentTime: t}, nil
	}
	snap, err := reporter.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot get state of #%s", id)
	}
	state := &State{
		ID:          id,
		CurrentTime: snap.CurrentTime,
		Duration:    snap.Duration,
		Paused:      snap.Paused,
		Ended:       snap.Ended,
	}
	if state.Buffered, err = a.ranges(snap.Buffered); err != nil {
		return nil, errors.Wrap(err, "buffered")
	}
	if state.Seekable, err = a.ranges(snap.Seekable); err != nil {
		return nil, errors.Wrap(err, "seekable")
	}
	if state.Played, err = a.ranges(snap.Played); err != nil {
		return nil, errors.Wrap(err, "played")
	}
	if state.TextTracks, err = a.trackModes(ctx, m); err != nil {
		return nil, errors.Wrapf(err, "cannot get text track modes of #%s", id)
	}
	return state, nil
}

func (a *Adapter) trackModes(ctx context.Context, m MediaElement) ([]TrackMode, error) {
	tracks, err := m.TextTracks(ctx)
	if err != nil {
		return nil, err
	}
	modes := make([]TrackMode, 0, len(tracks))
	for _, track := range tracks {
		mode, err := a.compat.TrackMode(ctx, asTrackElement(track))
		if err != nil {
			return nil, err
		}
		modes = append(modes, mode)
	}
	return modes, nil
}

func (a *Adapter) ranges(v any) ([]TimeRange, error) {
	r, err := asTimeRanges(v)
	if err != nil {
		return nil, err
	}
	return a.compat.RangeView(r), nil
}
