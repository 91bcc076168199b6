package orchestrator

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/ChaseRain/slidegen/internal/infra/limiter"
	"github.com/ChaseRain/slidegen/internal/infra/logger"
	"github.com/ChaseRain/slidegen/internal/service/delivery"
	"github.com/ChaseRain/slidegen/internal/service/generation"
	"github.com/ChaseRain/slidegen/internal/service/session"
	"github.com/ChaseRain/slidegen/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var solarArtifact = &generation.Artifact{
	Filename:    "solar.pdf",
	ContentType: "application/pdf",
	FileBase64:  "JVBERi0x",
	Structure: &generation.Structure{Slides: []generation.Slide{
		{Title: "Intro"}, {Title: "Trends"}, {Title: "Outlook"},
	}},
}

type fixture struct {
	orch    *Orchestrator
	gen     *fakeGenerator
	store   *session.MemoryStore
	archive *spyDownloader
}

func newFixture(t *testing.T, result generation.Result, opts Options) *fixture {
	t.Helper()
	gen := &fakeGenerator{result: result}
	store := session.NewMemoryStore(time.Hour, logger.NewNop())
	archive := &spyDownloader{}
	orch := New(gen, store, archive, limiter.New(4, 0), logger.NewNop(), opts)
	t.Cleanup(orch.Close)
	return &fixture{orch: orch, gen: gen, store: store, archive: archive}
}

func longBanners() Options {
	return Options{SuccessBanner: time.Hour, ErrorBanner: time.Hour, ValidationBanner: time.Hour}
}

func TestSubmit_ExampleScenario(t *testing.T) {
	f := newFixture(t, generation.Result{Artifact: solarArtifact}, longBanners())
	s := f.orch.Session("browser-1")
	req := generation.Request{Text: "Solar energy trends", SlideCount: 3, Type: generation.TypePDF}

	result, err := f.orch.Submit(context.Background(), s, req)
	require.NoError(t, err)
	require.True(t, result.OK())

	require.Len(t, f.gen.requests, 1)
	assert.Equal(t, req, f.gen.requests[0])

	// exactly one download invocation with matching arguments
	require.Len(t, f.archive.calls, 1)
	assert.Equal(t, downloadCall{"JVBERi0x", "solar.pdf", "application/pdf"}, f.archive.calls[0])

	view := s.View()
	assert.Equal(t, StateSuccess, view.State)
	require.NotNil(t, view.Banner)
	assert.Equal(t, BannerSuccess, view.Banner.Kind)
	assert.Equal(t, MsgSuccess, view.Banner.Message)
	require.Len(t, view.Downloads, 1)
	assert.Equal(t, delivery.Link{Href: "data:application/pdf;base64,JVBERi0x", Filename: "solar.pdf"}, view.Downloads[0])

	assert.Empty(t, s.View().Downloads, "a link is rendered once")

	rec, err := f.orch.Result(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "solar.pdf", rec.Artifact.Filename)
	assert.Len(t, rec.Artifact.Structure.Slides, 3)
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t, generation.Result{Artifact: solarArtifact}, longBanners())
	s := f.orch.Session("browser-1")

	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := f.orch.Submit(context.Background(), s, generation.Request{Text: text, SlideCount: 5, Type: generation.TypePPTX})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCodeValidation))
	}

	assert.Equal(t, 0, f.gen.calls(), "nothing is sent over the network")
	assert.Equal(t, StateIdle, s.State())
	require.NotNil(t, s.Banner())
	assert.Equal(t, BannerError, s.Banner().Kind)
}

func TestSubmit_SlideCountBoundaries(t *testing.T) {
	f := newFixture(t, generation.Result{Artifact: solarArtifact}, longBanners())
	s := f.orch.Session("browser-1")

	for _, n := range []int{generation.MinSlides, generation.MaxSlides} {
		result, err := f.orch.Submit(context.Background(), s, generation.Request{Text: "topic", SlideCount: n, Type: generation.TypePPTX})
		require.NoError(t, err)
		assert.True(t, result.OK())
	}
	require.Len(t, f.gen.requests, 2)
	assert.Equal(t, 1, f.gen.requests[0].SlideCount)
	assert.Equal(t, 15, f.gen.requests[1].SlideCount)
}

func TestSubmit_Failure(t *testing.T) {
	failed := generation.Result{Failure: &generation.Failure{Kind: errors.ErrCodeTimeout, Message: generation.MsgTimeout}}
	f := newFixture(t, failed, longBanners())
	s := f.orch.Session("browser-1")

	result, err := f.orch.Submit(context.Background(), s, generation.Request{Text: "x", SlideCount: 5})
	require.NoError(t, err)
	assert.False(t, result.OK())

	view := s.View()
	assert.Equal(t, StateFailed, view.State)
	require.NotNil(t, view.Banner)
	assert.Equal(t, generation.MsgTimeout, view.Banner.Message)
	assert.Empty(t, view.Downloads)
	assert.Empty(t, f.archive.calls)

	_, err = f.orch.Result(context.Background(), s)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestSubmit_SingleInFlight(t *testing.T) {
	f := newFixture(t, generation.Result{Artifact: solarArtifact}, longBanners())
	f.gen.block = make(chan struct{})
	f.gen.started = make(chan struct{}, 1)
	s := f.orch.Session("browser-1")
	req := generation.Request{Text: "x", SlideCount: 5}

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.Submit(context.Background(), s, req)
		done <- err
	}()
	<-f.gen.started
	assert.Equal(t, StateSubmitting, s.State())

	_, err := f.orch.Submit(context.Background(), s, req)
	assert.True(t, errors.Is(err, errors.ErrCodeInProgress))

	// other browsers are unaffected
	other := f.orch.Session("browser-2")
	assert.Equal(t, StateIdle, other.State())

	close(f.gen.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateSuccess, s.State())
	assert.Equal(t, 1, f.gen.calls())
}

func TestSubmit_AutoDismiss(t *testing.T) {
	opts := Options{SuccessBanner: 20 * time.Millisecond, ErrorBanner: 20 * time.Millisecond, ValidationBanner: 20 * time.Millisecond}
	f := newFixture(t, generation.Result{Artifact: solarArtifact}, opts)
	s := f.orch.Session("browser-1")

	_, err := f.orch.Submit(context.Background(), s, generation.Request{Text: "x", SlideCount: 5})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, s.State())

	assert.Eventually(t, func() bool {
		return s.State() == StateIdle && s.Banner() == nil
	}, time.Second, 5*time.Millisecond)
}

func TestSession_CloseCancelsDismiss(t *testing.T) {
	opts := Options{SuccessBanner: 30 * time.Millisecond}
	f := newFixture(t, generation.Result{Artifact: solarArtifact}, opts)
	s := f.orch.Session("browser-1")

	_, err := f.orch.Submit(context.Background(), s, generation.Request{Text: "x", SlideCount: 5})
	require.NoError(t, err)
	s.Close()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StateSuccess, s.State(), "a closed session is never touched by its timer")

	_, err = f.orch.Submit(context.Background(), s, generation.Request{Text: "x", SlideCount: 5})
	assert.Error(t, err)
}

func TestSubmit_NextActionSupersedesBanner(t *testing.T) {
	f := newFixture(t, generation.Result{Artifact: solarArtifact}, longBanners())
	s := f.orch.Session("browser-1")

	_, err := f.orch.Submit(context.Background(), s, generation.Request{Text: " ", SlideCount: 5})
	require.Error(t, err)
	require.NotNil(t, s.Banner())

	_, err = f.orch.Submit(context.Background(), s, generation.Request{Text: "ok", SlideCount: 5})
	require.NoError(t, err)
	assert.Equal(t, BannerSuccess, s.Banner().Kind)
}

func TestSubmit_StoreFailureStillDelivers(t *testing.T) {
	gen := &fakeGenerator{result: generation.Result{Artifact: solarArtifact}}
	store := failingStore{Store: session.NewMemoryStore(0, logger.NewNop()), err: stderrors.New("redis down")}
	orch := New(gen, store, nil, limiter.New(1, 0), logger.NewNop(), longBanners())
	defer orch.Close()
	s := orch.Session("browser-1")

	result, err := orch.Submit(context.Background(), s, generation.Request{Text: "x", SlideCount: 5})
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Len(t, s.View().Downloads, 1)
}

func TestSubmit_FillsMissingFilename(t *testing.T) {
	bare := &generation.Artifact{FileBase64: "UEsDBA=="}
	f := newFixture(t, generation.Result{Artifact: bare}, longBanners())
	s := f.orch.Session("browser-1")

	_, err := f.orch.Submit(context.Background(), s, generation.Request{Text: "x", SlideCount: 5, Type: generation.TypePPTX})
	require.NoError(t, err)

	require.Len(t, f.archive.calls, 1)
	assert.Regexp(t, `^presentation-[0-9a-f]{6}\.pptx$`, f.archive.calls[0].Filename)
	assert.Equal(t, delivery.ContentTypePPTX, f.archive.calls[0].ContentType)
}

func TestRedeliverAndReset(t *testing.T) {
	f := newFixture(t, generation.Result{Artifact: solarArtifact}, longBanners())
	s := f.orch.Session("browser-1")
	ctx := context.Background()

	_, err := f.orch.Redeliver(ctx, s)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	_, err = f.orch.Submit(ctx, s, generation.Request{Text: "x", SlideCount: 5})
	require.NoError(t, err)
	s.View()

	rec, err := f.orch.Redeliver(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "solar.pdf", rec.Artifact.Filename)
	links := s.View().Downloads
	require.Len(t, links, 1)
	assert.Equal(t, "data:application/pdf;base64,JVBERi0x", links[0].Href)
	assert.Len(t, f.archive.calls, 2, "re-downloads go through the same delivery chain")

	require.NoError(t, f.orch.Reset(ctx, s))
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Banner())
	_, err = f.orch.Result(ctx, s)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestSweep(t *testing.T) {
	f := newFixture(t, generation.Result{Artifact: solarArtifact}, Options{MaxIdle: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.orch.now = func() time.Time { return now }

	old := f.orch.Session("old")
	now = now.Add(50 * time.Second)
	f.orch.Session("fresh")
	now = now.Add(20 * time.Second)

	assert.Equal(t, 1, f.orch.Sweep())
	assert.NotSame(t, old, f.orch.Session("old"), "evicted session is recreated")
	assert.Same(t, f.orch.Session("fresh"), f.orch.Session("fresh"))
}

func TestSubmit_BannerCarriesItsTimeout(t *testing.T) {
	opts := Options{SuccessBanner: time.Hour, ErrorBanner: 2 * time.Hour, ValidationBanner: 3 * time.Hour}
	f := newFixture(t, generation.Result{Artifact: solarArtifact}, opts)
	s := f.orch.Session("browser-1")

	_, err := f.orch.Submit(context.Background(), s, generation.Request{Text: " ", SlideCount: 5})
	require.Error(t, err)
	assert.Equal(t, 3*time.Hour, s.Banner().Timeout)

	f.orch.Reject(s, MsgInvalidForm)
	assert.Equal(t, MsgInvalidForm, s.Banner().Message)
	assert.Equal(t, 3*time.Hour, s.Banner().Timeout)

	_, err = f.orch.Submit(context.Background(), s, generation.Request{Text: "ok", SlideCount: 5})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, s.Banner().Timeout)
}

func TestSubmit_LimiterWait(t *testing.T) {
	lim := limiter.New(1, 0)
	release, ok := lim.TryAcquire()
	require.True(t, ok)
	defer release()

	gen := &fakeGenerator{result: generation.Result{Artifact: solarArtifact}}
	opts := longBanners()
	opts.LimiterWait = 30 * time.Millisecond
	orch := New(gen, session.NewMemoryStore(time.Hour, logger.NewNop()), nil, lim, logger.NewNop(), opts)
	t.Cleanup(orch.Close)
	s := orch.Session("browser-1")

	start := time.Now()
	result, err := orch.Submit(context.Background(), s, generation.Request{Text: "x", SlideCount: 5})
	require.NoError(t, err)
	require.False(t, result.OK())
	assert.Equal(t, errors.ErrCodeRateLimited, result.Failure.Kind)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, gen.calls())
	assert.Equal(t, StateFailed, s.State())
}

func TestSession_ReturningAfterIdleIsKept(t *testing.T) {
	f := newFixture(t, generation.Result{Artifact: solarArtifact}, Options{MaxIdle: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.orch.now = func() time.Time { return now }

	s := f.orch.Session("browser-1")
	now = now.Add(2 * time.Minute)
	again := f.orch.Session("browser-1")

	assert.Same(t, s, again)
	assert.Zero(t, f.orch.Sweep())
	_, err := f.orch.Submit(context.Background(), again, generation.Request{Text: "x", SlideCount: 5})
	assert.NoError(t, err)
}

func TestSession_ClosedIsReplaced(t *testing.T) {
	f := newFixture(t, generation.Result{Artifact: solarArtifact}, longBanners())

	s := f.orch.Session("browser-1")
	s.Close()

	fresh := f.orch.Session("browser-1")
	assert.NotSame(t, s, fresh)
	_, err := f.orch.Submit(context.Background(), fresh, generation.Request{Text: "x", SlideCount: 5})
	assert.NoError(t, err)
	assert.Equal(t, StateSuccess, fresh.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "submitting", StateSubmitting.String())
	assert.Equal(t, "success", StateSuccess.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}
