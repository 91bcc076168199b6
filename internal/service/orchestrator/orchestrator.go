package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/ChaseRain/slidegen/internal/infra/limiter"
	"github.com/ChaseRain/slidegen/internal/infra/logger"
	"github.com/ChaseRain/slidegen/internal/infra/metrics"
	"github.com/ChaseRain/slidegen/internal/service/delivery"
	"github.com/ChaseRain/slidegen/internal/service/generation"
	"github.com/ChaseRain/slidegen/internal/service/session"
	"github.com/ChaseRain/slidegen/pkg/errors"
)

const (
	MsgSuccess     = "Success! Your file has been downloaded."
	MsgRateLimited = "Too many presentations are being generated right now. Please try again shortly."
	MsgInvalidForm = "Please check the form and try again."
)

// Generator is the Request Client as seen by the flow.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) generation.Result
}

type Options struct {
	SuccessBanner    time.Duration
	ErrorBanner      time.Duration
	ValidationBanner time.Duration
	// LimiterWait bounds how long a submission queues for a generation slot.
	LimiterWait time.Duration
	// MaxIdle evicts sessions nobody has touched for this long. Zero keeps them.
	MaxIdle time.Duration
}

type Orchestrator struct {
	generator Generator
	store     session.Store
	archive   delivery.Downloader
	limiter   *limiter.Limiter
	logger    *logger.Logger
	opts      Options
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// New wires the flow. archive may be nil.
func New(
	generator Generator,
	store session.Store,
	archive delivery.Downloader,
	lim *limiter.Limiter,
	log *logger.Logger,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		store:     store,
		archive:   archive,
		limiter:   lim,
		logger:    log.Named("orchestrator"),
		opts:      opts,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Session returns the live session for id, creating it on first use.
func (o *Orchestrator) Session(id string) *Session {
	now := o.now()

	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sessions[id]
	if !ok || s.isClosed() {
		s = newSession(id, now)
		o.sessions[id] = s
		metrics.ActiveSessions.Set(float64(len(o.sessions)))
	}
	// touched under o.mu so a concurrent Sweep never evicts a returning session
	s.touch(now)
	return s
}

// Reject shows a validation banner for input that never became a request.
func (o *Orchestrator) Reject(s *Session, message string) {
	metrics.ValidationRejectsTotal.Inc()
	s.notify(Banner{Kind: BannerError, Message: message}, o.opts.ValidationBanner)
}

// Submit runs one generation cycle for s. The returned error is non-nil only
// when nothing was sent: a validation failure or a cycle already in flight.
// Upstream failures are reported through the Result.
func (o *Orchestrator) Submit(ctx context.Context, s *Session, req generation.Request) (generation.Result, error) {
	log := o.logger.With("session_id", s.ID())

	if err := req.Validate(); err != nil {
		metrics.ValidationRejectsTotal.Inc()
		s.notify(Banner{Kind: BannerError, Message: errors.MessageOf(err)}, o.opts.ValidationBanner)
		log.Debug("submission rejected", "error", err)
		return generation.Result{}, err
	}

	if err := s.begin(); err != nil {
		log.Warn("submission refused", "error", err)
		return generation.Result{}, err
	}

	log.Info("starting generation",
		"slide_count", req.SlideCount,
		"type", req.Type,
		"text_length", len(req.Text),
	)

	// 浏览器断开不应中止生成，超时由客户端自行控制
	genCtx := context.WithoutCancel(ctx)

	release, ok := o.limiter.TryAcquire()
	if !ok {
		var err error = errors.New(errors.ErrCodeRateLimited, "no generation slot free")
		if o.opts.LimiterWait > 0 {
			waitCtx, cancel := context.WithTimeout(genCtx, o.opts.LimiterWait)
			release, err = o.limiter.Acquire(waitCtx)
			cancel()
		}
		if err != nil {
			log.Warn("generation limiter exhausted", "error", err)
			result := generation.Result{Failure: &generation.Failure{Kind: errors.ErrCodeRateLimited, Message: MsgRateLimited}}
			s.finish(StateFailed, Banner{Kind: BannerError, Message: MsgRateLimited}, o.opts.ErrorBanner)
			return result, nil
		}
	}
	result := o.generator.Generate(genCtx, req)
	release()

	if !result.OK() {
		s.finish(StateFailed, Banner{Kind: BannerError, Message: result.Failure.Message}, o.opts.ErrorBanner)
		return result, nil
	}

	artifact := result.Artifact
	delivery.Normalize(artifact, req.Type)

	o.deliver(s, artifact, "generate")

	rec := session.Record{Artifact: *artifact, CreatedAt: o.now()}
	if err := o.store.Save(genCtx, s.ID(), rec); err != nil {
		// the download already happened; only the preview hand-off is lost
		log.Error("failed to store result for preview", "error", err)
	}

	s.finish(StateSuccess, Banner{Kind: BannerSuccess, Message: MsgSuccess}, o.opts.SuccessBanner)
	log.Info("generation delivered", "filename", artifact.Filename)
	return result, nil
}

// Result loads the stored hand-off record for the preview view.
func (o *Orchestrator) Result(ctx context.Context, s *Session) (*session.Record, error) {
	return o.store.Load(ctx, s.ID())
}

// Redeliver queues another download of the stored artifact.
func (o *Orchestrator) Redeliver(ctx context.Context, s *Session) (*session.Record, error) {
	rec, err := o.store.Load(ctx, s.ID())
	if err != nil {
		return nil, err
	}
	o.deliver(s, &rec.Artifact, "preview")
	return rec, nil
}

// deliver hands the artifact to the session's link queue and the archive, once.
func (o *Orchestrator) deliver(s *Session, a *generation.Artifact, route string) {
	downloader := delivery.Fanout{&s.downloads}
	if o.archive != nil {
		downloader = append(downloader, o.archive)
	}
	downloader.Download(a.FileBase64, a.Filename, a.ContentType)
	metrics.DownloadsTotal.WithLabelValues(route).Inc()
}

// Reset discards the stored result: the "start over" action.
func (o *Orchestrator) Reset(ctx context.Context, s *Session) error {
	if err := o.store.Clear(ctx, s.ID()); err != nil {
		return err
	}
	s.reset()
	o.logger.Debug("session reset", "session_id", s.ID())
	return nil
}

// Sweep closes and forgets sessions idle for longer than MaxIdle. Sessions
// with a generation in flight are kept.
func (o *Orchestrator) Sweep() int {
	if o.opts.MaxIdle <= 0 {
		return 0
	}
	now := o.now()

	o.mu.Lock()
	defer o.mu.Unlock()

	evicted := 0
	for id, s := range o.sessions {
		idle, busy := s.idleSince(now)
		if busy || idle < o.opts.MaxIdle {
			continue
		}
		s.Close()
		delete(o.sessions, id)
		evicted++
	}
	metrics.ActiveSessions.Set(float64(len(o.sessions)))
	if evicted > 0 {
		o.logger.Debug("evicted idle sessions", "count", evicted)
	}
	return evicted
}

// Run sweeps periodically until ctx is done, then closes every session.
func (o *Orchestrator) Run(ctx context.Context) {
	interval := o.opts.MaxIdle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.Close()
			return
		case <-ticker.C:
			o.Sweep()
		}
	}
}

func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for id, s := range o.sessions {
		s.Close()
		delete(o.sessions, id)
	}
	metrics.ActiveSessions.Set(0)
}
