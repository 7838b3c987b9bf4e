package media_test

import (
	"context"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/je4/mediaport/pkg/media"
	"github.com/je4/mediaport/pkg/media/mediatest"
	"github.com/je4/utils/v2/pkg/zLogger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zLogger.ZLogger {
	logger := zerolog.Nop()
	return zLogger.ZLogger(&logger)
}

func newAdapter(doc *mediatest.Document) *media.Adapter {
	return media.NewAdapter(doc, nil, testLogger())
}

func TestAdapter_NotFound(t *testing.T) {
	doc := mediatest.NewDocument()
	other := mediatest.NewVideo("other")
	doc.Add(other)
	a := newAdapter(doc)

	commands := []media.Command{
		media.Play{ID: "missing"},
		media.Pause{ID: "missing"},
		media.Seek{ID: "missing", Time: 3},
		media.FastSeek{ID: "missing", Time: 3},
		media.Load{ID: "missing"},
		media.ChangeTextTrackMode{ID: "missing", TrackNumber: 0, Mode: media.TrackShowing},
		media.Capture{ID: "missing", Constraints: media.DefaultConstraints},
	}
	for _, cmd := range commands {
		err := a.Execute(context.Background(), cmd)
		var notFound *media.NotFoundError
		require.True(t, errors.As(err, &notFound), "%s should fail with NotFound, got %v", cmd.Tag(), err)
		assert.Equal(t, "missing", notFound.ID)
		assert.Equal(t, media.ResultNotFound, media.Classify(err))
	}
	assert.Empty(t, other.Calls(), "no native call expected")
}

func TestAdapter_NotMediaElement(t *testing.T) {
	doc := mediatest.NewDocument()
	doc.Add(&mediatest.Node{NodeID: "box", NodeName: "DIV"})
	a := newAdapter(doc)

	for _, cmd := range []media.Command{
		media.Play{ID: "box"},
		media.Pause{ID: "box"},
		media.Seek{ID: "box", Time: 1},
		media.Load{ID: "box"},
	} {
		err := a.Execute(context.Background(), cmd)
		var notMedia *media.NotMediaElementError
		require.True(t, errors.As(err, &notMedia), "%s: got %v", cmd.Tag(), err)
		assert.Equal(t, "box", notMedia.ID)
		assert.Equal(t, "DIV", notMedia.Kind)
	}
}

func TestAdapter_SeekEndToEnd(t *testing.T) {
	doc := mediatest.NewDocument()
	v1 := mediatest.NewVideo("v1")
	doc.Add(v1)
	a := newAdapter(doc)

	require.NoError(t, a.Execute(context.Background(), media.Seek{ID: "v1", Time: 42}))
	assert.Equal(t, 42.0, v1.Time())
}

func TestAdapter_SeekOutOfRange(t *testing.T) {
	doc := mediatest.NewDocument()
	v1 := mediatest.NewVideo("v1")
	v1.SetDuration(10)
	doc.Add(v1)
	a := newAdapter(doc)

	require.NoError(t, a.Execute(context.Background(), media.Seek{ID: "v1", Time: -5}))
	assert.Equal(t, -5.0, v1.Time(), "bounds are left to the element")
}

func TestAdapter_PauseMissing(t *testing.T) {
	a := newAdapter(mediatest.NewDocument())
	err := a.Execute(context.Background(), media.Pause{ID: "missing"})
	assert.EqualError(t, err, "node with id #missing not found")
}

func TestAdapter_Play(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	doc.Add(v)
	a := newAdapter(doc)

	require.NoError(t, a.Execute(context.Background(), media.Play{ID: "v"}))
	assert.False(t, v.Paused())
	assert.Equal(t, []string{"play"}, v.Calls())
}

func TestAdapter_PlayRejected(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	v.Behavior = mediatest.PlayRejects
	v.RejectReason = "NotAllowedError: play() failed because the user didn't interact with the document first."
	doc.Add(v)
	a := newAdapter(doc)

	err := a.Execute(context.Background(), media.Play{ID: "v"})
	var rejected *media.PlayRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "v", rejected.ID)
	assert.Equal(t, v.RejectReason, rejected.Reason)
	assert.Equal(t, media.ResultPlayRejected, media.Classify(err))
}

func TestAdapter_PlaySynchronous(t *testing.T) {
	doc := mediatest.NewDocument()
	a4 := mediatest.NewAudio("a4")
	a4.Behavior = mediatest.PlaySync
	doc.Add(a4)
	a := newAdapter(doc)

	assert.NoError(t, a.Execute(context.Background(), media.Play{ID: "a4"}))
	assert.False(t, a4.Paused())
}

func TestAdapter_PlayPending(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	v.Behavior = mediatest.PlayPending
	doc.Add(v)
	a := newAdapter(doc)

	done := make(chan error, 1)
	go func() { done <- a.Execute(context.Background(), media.Play{ID: "v"}) }()

	require.Eventually(t, func() bool { return len(v.Calls()) == 1 }, time.Second, time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("play returned before confirmation: %v", err)
	default:
	}
	v.Reject("AbortError")
	err := <-done
	var rejected *media.PlayRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "AbortError", rejected.Reason)
}

func TestAdapter_PlayWaitCancelled(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	v.Behavior = mediatest.PlayPending
	doc.Add(v)
	a := newAdapter(doc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.Execute(ctx, media.Play{ID: "v"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, media.ResultHostError, media.Classify(err))
}

func TestAdapter_PauseAndLoad(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	doc.Add(v)
	a := newAdapter(doc)

	require.NoError(t, a.Execute(context.Background(), media.Seek{ID: "v", Time: 7}))
	require.NoError(t, a.Execute(context.Background(), media.Pause{ID: "v"}))
	require.NoError(t, a.Execute(context.Background(), media.Load{ID: "v"}))
	assert.Equal(t, []string{"seek", "pause", "load"}, v.Calls())
	assert.True(t, v.Paused())
	assert.Equal(t, 0.0, v.Time())
}

func TestAdapter_FastSeek(t *testing.T) {
	doc := mediatest.NewDocument()
	plain := mediatest.NewVideo("plain")
	fast := mediatest.NewFastSeekVideo("fast")
	doc.Add(plain)
	doc.Add(fast)
	a := newAdapter(doc)

	require.NoError(t, a.Execute(context.Background(), media.FastSeek{ID: "fast", Time: 12.5}))
	assert.Equal(t, 12.5, fast.Time())
	assert.Equal(t, []string{"fastSeek"}, fast.Calls())

	require.NoError(t, a.Execute(context.Background(), media.FastSeek{ID: "plain", Time: 12.5}))
	assert.Equal(t, 0.0, plain.Time(), "no fallback to a precise seek")
	assert.Empty(t, plain.Calls())
}

func TestAdapter_ChangeTextTrackMode(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	first := v.AddTrack(media.TrackDisabled)
	second := v.AddTrack(media.TrackHidden)
	doc.Add(v)
	a := newAdapter(doc)
	ctx := context.Background()

	require.NoError(t, a.Execute(ctx, media.ChangeTextTrackMode{ID: "v", TrackNumber: 1, Mode: media.TrackShowing}))
	mode, _ := second.Mode(ctx)
	assert.Equal(t, media.TrackShowing, mode)

	for _, idx := range []int{2, 17, -1} {
		require.NoError(t, a.Execute(ctx, media.ChangeTextTrackMode{ID: "v", TrackNumber: idx, Mode: media.TrackHidden}))
	}
	mode, _ = first.Mode(ctx)
	assert.Equal(t, media.TrackDisabled, mode)
	mode, _ = second.Mode(ctx)
	assert.Equal(t, media.TrackShowing, mode)
}

func TestAdapter_UnknownIsIgnored(t *testing.T) {
	doc := mediatest.NewDocument()
	a := newAdapter(doc)

	assert.NoError(t, a.Execute(context.Background(), media.Unknown{ID: "missing", RawTag: "Rewind"}))
	assert.Empty(t, doc.Lookups(), "unknown commands do not touch the registry")
}

func TestAdapter_ReresolvesEveryCommand(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	doc.Add(v)
	a := newAdapter(doc)
	ctx := context.Background()

	require.NoError(t, a.Execute(ctx, media.Pause{ID: "v"}))
	doc.Remove("v")
	err := a.Execute(ctx, media.Pause{ID: "v"})
	assert.Equal(t, media.ResultNotFound, media.Classify(err))
	assert.Equal(t, []string{"v", "v"}, doc.Lookups())
}

func TestAdapter_HostError(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	v.HostErr = errors.New("websocket closed")
	doc.Add(v)
	a := newAdapter(doc)

	err := a.Execute(context.Background(), media.Load{ID: "v"})
	require.Error(t, err)
	assert.Equal(t, media.ResultHostError, media.Classify(err))
	assert.Contains(t, err.Error(), "websocket closed")
}

func TestAdapter_Capture(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("cam")
	doc.Add(v)
	ctx := context.Background()

	var got media.Constraints
	compat := media.NewCompat(media.Natives{
		UserMedia: func(_ context.Context, c media.Constraints) (media.Stream, error) {
			got = c
			return mediatest.Stream("stream-1"), nil
		},
	})
	a := media.NewAdapter(doc, compat, testLogger())
	require.NoError(t, a.Execute(ctx, media.Capture{ID: "cam", Constraints: media.Constraints{Video: true}}))
	assert.Equal(t, media.Constraints{Video: true}, got)
	assert.Equal(t, mediatest.Stream("stream-1"), v.Stream())

	a = newAdapter(doc)
	err := a.Execute(ctx, media.Capture{ID: "cam", Constraints: media.DefaultConstraints})
	var failed *media.CaptureFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, media.ErrNotImplemented.Error(), failed.Reason)
}

func TestAdapter_CanPlayType(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	v.SetCanPlay("video/webm", "probably")
	v.SetCanPlay("video/mp4", "maybe")
	doc.Add(v)
	a := newAdapter(doc)
	ctx := context.Background()

	tests := map[string]media.CanPlay{
		"video/webm":      media.Probably,
		"video/mp4":       media.Maybe,
		"application/ogg": media.No,
	}
	for mime, want := range tests {
		got, err := a.CanPlayType(ctx, "v", mime)
		require.NoError(t, err)
		assert.Equal(t, want, got, mime)
	}

	_, err := a.CanPlayType(ctx, "nope", "video/mp4")
	assert.Equal(t, media.ResultNotFound, media.Classify(err))
}

func TestAdapter_State(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	v.SetDuration(120)
	v.Buffered = media.RangeSlice{{Start: 0, End: 10}, {Start: 30, End: 45}}
	doc.Add(v)
	a := newAdapter(doc)
	ctx := context.Background()
	require.NoError(t, a.Execute(ctx, media.Seek{ID: "v", Time: 33}))

	state, err := a.State(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, "v", state.ID)
	assert.Equal(t, 33.0, state.CurrentTime)
	assert.Equal(t, 120.0, state.Duration)
	assert.True(t, state.Paused)
	assert.False(t, state.Ended)
	assert.Equal(t, []media.TimeRange{{Start: 0, End: 10}, {Start: 30, End: 45}}, state.Buffered)
	assert.Equal(t, []media.TimeRange{{Start: 0, End: 120}}, state.Seekable)
	assert.Empty(t, state.Played)
	assert.Empty(t, state.TextTracks)

	v.AddTrack(media.TrackShowing)
	v.AddTrack(media.TrackDisabled)
	state, err = a.State(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, []media.TrackMode{media.TrackShowing, media.TrackDisabled}, state.TextTracks)
}

func TestAdapter_StartLeavesPlayPending(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	v.Behavior = mediatest.PlayPending
	doc.Add(v)
	a := newAdapter(doc)
	ctx := context.Background()

	pending, err := a.Start(ctx, media.Play{ID: "v"})
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "v", pending.ID())

	// later commands run while the play request is unconfirmed
	pause, err := a.Start(ctx, media.Pause{ID: "v"})
	require.NoError(t, err)
	assert.Nil(t, pause)
	assert.Equal(t, []string{"play", "pause"}, v.Calls())

	v.Resolve()
	assert.NoError(t, pending.Wait(ctx))
}

func TestAdapter_StartSettledPlay(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	v.Behavior = mediatest.PlayRejects
	v.RejectReason = "NotAllowedError"
	doc.Add(v)
	a := newAdapter(doc)

	pending, err := a.Start(context.Background(), media.Play{ID: "v"})
	assert.Nil(t, pending, "an already settled play is answered at once")
	assert.Equal(t, media.ResultPlayRejected, media.Classify(err))
}

// recordingTrackMode is a host track-mode accessor.
type recordingTrackMode struct {
	set []media.TrackMode
}

func (r *recordingTrackMode) Mode(ctx context.Context, el media.TrackElement) (media.TrackMode, error) {
	return el.Track().Mode(ctx)
}

func (r *recordingTrackMode) SetMode(ctx context.Context, el media.TrackElement, mode media.TrackMode) error {
	r.set = append(r.set, mode)
	return el.Track().SetMode(ctx, mode)
}

func TestAdapter_ChangeTextTrackModeUsesCompat(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	track := v.AddTrack(media.TrackDisabled)
	doc.Add(v)
	accessor := &recordingTrackMode{}
	a := media.NewAdapter(doc, media.NewCompat(media.Natives{TrackMode: accessor}), testLogger())
	ctx := context.Background()

	require.NoError(t, a.Execute(ctx, media.ChangeTextTrackMode{ID: "v", TrackNumber: 0, Mode: media.TrackHidden}))
	assert.Equal(t, []media.TrackMode{media.TrackHidden}, accessor.set)
	mode, _ := track.Mode(ctx)
	assert.Equal(t, media.TrackHidden, mode)
}

// indexedRanges has no ordered view of its own.
type indexedRanges [][2]float64

func (r indexedRanges) Len() int            { return len(r) }
func (r indexedRanges) Start(i int) float64 { return r[i][0] }
func (r indexedRanges) End(i int) float64   { return r[i][1] }

func TestAdapter_StateUsesRangeView(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	v.Buffered = indexedRanges{{0, 4}, {8, 9}}
	doc.Add(v)
	var viewed int
	view := func(r media.TimeRanges) []media.TimeRange {
		viewed++
		arr := make([]media.TimeRange, r.Len())
		for i := range arr {
			arr[i] = media.TimeRange{Start: r.Start(i), End: r.End(i)}
		}
		return arr
	}
	a := media.NewAdapter(doc, media.NewCompat(media.Natives{RangeView: view}), testLogger())

	state, err := a.State(context.Background(), "v")
	require.NoError(t, err)
	assert.Equal(t, []media.TimeRange{{Start: 0, End: 4}, {Start: 8, End: 9}}, state.Buffered)
	assert.Equal(t, 1, viewed, "only the buffered ranges lack an ordered view")
}

func TestAdapter_StateNilRanges(t *testing.T) {
	doc := mediatest.NewDocument()
	v := mediatest.NewVideo("v")
	v.Buffered = (*media.RangeSlice)(nil)
	doc.Add(v)

	_, err := newAdapter(doc).State(context.Background(), "v")
	assert.Equal(t, media.ResultNotTimeRanges, media.Classify(err))
}
