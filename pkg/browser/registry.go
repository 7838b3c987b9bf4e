package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"emperror.dev/errors"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/je4/mediaport/pkg/media"
)

// Registry resolves element ids in the document currently loaded in the
// browser. Nothing is cached; every lookup asks the page.
type Registry struct {
	browser *Browser
}

func (b *Browser) Registry() *Registry {
	return &Registry{browser: b}
}

// Natives returns the capabilities the page offers for the compatibility
// layer. The shims must be installed for the legacy capture fallback and
// the track element mode. Ranges arrive already ordered by asArray, so the
// range view is left to the compatibility layer.
func (b *Browser) Natives() media.Natives {
	r := b.Registry()
	return media.Natives{
		TrackMode: trackModes{registry: r},
		UserMedia: r.userMedia,
	}
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// jsString quotes s as a javascript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		// strings always marshal
		panic(err)
	}
	return string(b)
}

func (r *Registry) eval(ctx context.Context, expr string, res any, opts ...chromedp.EvaluateOption) error {
	return r.browser.Do(ctx, chromedp.Evaluate(expr, res, opts...))
}

type nodeInfo struct {
	Found    bool   `json:"found"`
	Kind     string `json:"kind"`
	Media    bool   `json:"media"`
	FastSeek bool   `json:"fastSeek"`
}

func lookupScript(id string) string {
	return fmt.Sprintf(`(function (el) {
  if (!el) { return { found: false }; }
  return {
    found: true,
    kind: el.nodeName,
    media: el instanceof HTMLMediaElement,
    fastSeek: typeof el.fastSeek === 'function'
  };
})(document.getElementById(%s))`, jsString(id))
}

func (r *Registry) Lookup(ctx context.Context, id string) (media.Element, bool, error) {
	var info nodeInfo
	if err := r.eval(ctx, lookupScript(id), &info); err != nil {
		return nil, false, errors.Wrapf(err, "cannot look up #%s in page", id)
	}
	if !info.Found {
		return nil, false, nil
	}
	node := domNode{registry: r, id: id, kind: info.Kind}
	if !info.Media {
		return node, true, nil
	}
	m := &domMedia{domNode: node}
	if info.FastSeek {
		return &fastSeekMedia{domMedia: m}, true, nil
	}
	return m, true, nil
}

type domNode struct {
	registry *Registry
	id       string
	kind     string
}

func (n domNode) ID() string   { return n.id }
func (n domNode) Kind() string { return n.kind }

// element returns an expression for the node. It throws if the node has
// vanished since the lookup.
func (n domNode) element() string {
	return fmt.Sprintf(`(function (id) {
  var el = document.getElementById(id);
  if (!el) { throw new Error('node with id #' + id + ' not found'); }
  return el;
})(%s)`, jsString(n.id))
}

type domMedia struct {
	domNode
}

type playOutcome struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

// Play starts playback and returns at once. The promise returned by the
// page is parked under a fresh id and awaited in the background.
func (m *domMedia) Play(ctx context.Context) (media.Completion, error) {
	expr := fmt.Sprintf(`(function (el) {
  var p = el.play();
  if (!p || typeof p.then !== 'function') { return ''; }
  var id = 'play-' + (++%s);
  %s[id] = p.then(
    function () { return { ok: true }; },
    function (e) { return { ok: false, reason: (e && e.name) ? e.name + ': ' + e.message : String(e) }; }
  );
  return id;
})(%s)`, jsNext, jsPlays, m.element())
	var id string
	if err := m.registry.eval(ctx, expr, &id); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	done := make(chan error, 1)
	go func() {
		err := m.registry.settlePlay(ctx, id)
		if ctx.Err() != nil {
			// the waiter has given up
			return
		}
		done <- err
	}()
	return done, nil
}

// settlePlay waits for the parked play promise id. A promise lost to a
// navigation counts as rejected.
func (r *Registry) settlePlay(ctx context.Context, id string) error {
	expr := fmt.Sprintf(`(function (id) {
  var p = %[1]s[id];
  delete %[1]s[id];
  return p || { ok: false, reason: 'play request ' + id + ' lost' };
})(%[2]s)`, jsPlays, jsString(id))
	var outcome playOutcome
	if err := r.eval(ctx, expr, &outcome, awaitPromise); err != nil {
		return err
	}
	if !outcome.OK {
		return errors.New(outcome.Reason)
	}
	return nil
}

func (m *domMedia) Pause(ctx context.Context) error {
	return m.registry.eval(ctx, m.element()+".pause()", nil)
}

func (m *domMedia) Load(ctx context.Context) error {
	return m.registry.eval(ctx, m.element()+".load()", nil)
}

func (m *domMedia) CurrentTime(ctx context.Context) (float64, error) {
	var t float64
	if err := m.registry.eval(ctx, m.element()+".currentTime", &t); err != nil {
		return 0, err
	}
	return t, nil
}

func (m *domMedia) SetCurrentTime(ctx context.Context, t float64) error {
	return m.registry.eval(ctx, fmt.Sprintf("%s.currentTime = %s", m.element(), jsNumber(t)), nil)
}

func (m *domMedia) CanPlayType(ctx context.Context, mimeType string) (string, error) {
	var answer string
	if err := m.registry.eval(ctx, fmt.Sprintf("%s.canPlayType(%s)", m.element(), jsString(mimeType)), &answer); err != nil {
		return "", err
	}
	return answer, nil
}

func (m *domMedia) TextTracks(ctx context.Context) ([]media.TextTrack, error) {
	var n int
	if err := m.registry.eval(ctx, m.element()+".textTracks.length", &n); err != nil {
		return nil, err
	}
	tracks := make([]media.TextTrack, n)
	for i := range tracks {
		tracks[i] = &domTrack{media: m, index: i}
	}
	return tracks, nil
}

type snapshotData struct {
	CurrentTime float64           `json:"currentTime"`
	Duration    float64           `json:"duration"`
	Paused      bool              `json:"paused"`
	Ended       bool              `json:"ended"`
	Buffered    []media.TimeRange `json:"buffered"`
	Seekable    []media.TimeRange `json:"seekable"`
	Played      []media.TimeRange `json:"played"`
}

func (m *domMedia) Snapshot(ctx context.Context) (*media.Snapshot, error) {
	expr := fmt.Sprintf(`(function (el) {
  function ranges(r) {
    if (typeof r.asArray === 'function') { return r.asArray(); }
    var result = [];
    for (var i = 0; i < r.length; i++) { result.push({ start: r.start(i), end: r.end(i) }); }
    return result;
  }
  return {
    currentTime: el.currentTime,
    duration: isFinite(el.duration) ? el.duration : 0,
    paused: el.paused,
    ended: el.ended,
    buffered: ranges(el.buffered),
    seekable: ranges(el.seekable),
    played: ranges(el.played)
  };
})(%s)`, m.element())
	var data snapshotData
	if err := m.registry.eval(ctx, expr, &data); err != nil {
		return nil, err
	}
	return &media.Snapshot{
		CurrentTime: data.CurrentTime,
		Duration:    data.Duration,
		Paused:      data.Paused,
		Ended:       data.Ended,
		Buffered:    media.RangeSlice(data.Buffered),
		Seekable:    media.RangeSlice(data.Seekable),
		Played:      media.RangeSlice(data.Played),
	}, nil
}

func (m *domMedia) AttachStream(ctx context.Context, stream media.Stream) error {
	expr := fmt.Sprintf(`(function (el, id) {
  var s = %s[id];
  if (!s) { throw new Error('unknown stream ' + id); }
  el.srcObject = s;
  return true;
})(%s, %s)`, jsStreams, m.element(), jsString(stream.StreamID()))
	return m.registry.eval(ctx, expr, nil)
}

type fastSeekMedia struct {
	*domMedia
}

func (m *fastSeekMedia) FastSeek(ctx context.Context, t float64) error {
	return m.registry.eval(ctx, fmt.Sprintf("%s.fastSeek(%s)", m.element(), jsNumber(t)), nil)
}

type domTrack struct {
	media *domMedia
	index int
}

func (t *domTrack) track() string {
	return fmt.Sprintf("%s.textTracks[%d]", t.media.element(), t.index)
}

func (t *domTrack) Mode(ctx context.Context) (media.TrackMode, error) {
	var mode string
	if err := t.media.registry.eval(ctx, t.track()+".mode", &mode); err != nil {
		return "", err
	}
	return media.ParseTrackMode(mode)
}

func (t *domTrack) SetMode(ctx context.Context, mode media.TrackMode) error {
	return t.media.registry.eval(ctx, fmt.Sprintf("%s.mode = %s", t.track(), jsString(string(mode))), nil)
}

func (t *domTrack) Track() media.TextTrack { return t }

// trackModes is the page's track mode accessor. A text track declared by a
// <track> child is switched through that element, anything else directly.
type trackModes struct {
	registry *Registry
}

func (tm trackModes) Mode(ctx context.Context, el media.TrackElement) (media.TrackMode, error) {
	return el.Track().Mode(ctx)
}

func (tm trackModes) SetMode(ctx context.Context, el media.TrackElement, mode media.TrackMode) error {
	t, ok := el.Track().(*domTrack)
	if !ok {
		return el.Track().SetMode(ctx, mode)
	}
	expr := fmt.Sprintf(`(function (el, index, mode) {
  var track = el.textTracks[index];
  var children = el.querySelectorAll('track');
  for (var i = 0; i < children.length; i++) {
    if (children[i].track === track) {
      children[i].mode = mode;
      return children[i].track.mode;
    }
  }
  track.mode = mode;
  return track.mode;
})(%s, %d, %s)`, t.media.element(), t.index, jsString(string(mode)))
	var result string
	if err := tm.registry.eval(ctx, expr, &result); err != nil {
		return err
	}
	if media.TrackMode(result) != mode {
		return errors.Errorf("text track %d kept mode %q", t.index, result)
	}
	return nil
}

type pageStream string

func (s pageStream) StreamID() string { return string(s) }

type streamOutcome struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

func (r *Registry) userMedia(ctx context.Context, c media.Constraints) (media.Stream, error) {
	constraints, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal constraints")
	}
	expr := fmt.Sprintf(`(function (constraints) {
  if (!navigator.mediaDevices || !navigator.mediaDevices.getUserMedia) {
    return { error: 'getUserMedia is not implemented in this browser' };
  }
  return navigator.mediaDevices.getUserMedia(constraints).then(
    function (s) {
      var id = 'stream-' + (++%s);
      %s[id] = s;
      return { id: id };
    },
    function (e) { return { error: (e && e.message) ? e.message : String(e) }; }
  );
})(%s)`, jsNext, jsStreams, string(constraints))
	var outcome streamOutcome
	if err := r.eval(ctx, expr, &outcome, awaitPromise); err != nil {
		return nil, err
	}
	if outcome.Error != "" {
		return nil, errors.New(outcome.Error)
	}
	return pageStream(outcome.ID), nil
}

// jsNumber formats t as a javascript number literal.
func jsNumber(t float64) string {
	switch {
	case math.IsNaN(t):
		return "NaN"
	case math.IsInf(t, 1):
		return "Infinity"
	case math.IsInf(t, -1):
		return "-Infinity"
	}
	b, _ := json.Marshal(t)
	return string(b)
}

var (
	_ media.Registry       = (*Registry)(nil)
	_ media.MediaElement   = (*domMedia)(nil)
	_ media.StateReporter  = (*domMedia)(nil)
	_ media.StreamAttacher = (*domMedia)(nil)
	_ media.FastSeeker     = (*fastSeekMedia)(nil)
	_ media.TextTrack      = (*domTrack)(nil)
	_ media.TrackElement   = (*domTrack)(nil)

	_ media.TrackModeAccessor = trackModes{}
)
