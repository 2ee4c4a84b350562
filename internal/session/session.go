// Package session owns the single messaging-channel connection of the process.
//
// Channel drivers only report lifecycle events; the Session folds them through
// Transition, runs reactions (QR rendering, ready hooks) and gates every send
// on the Ready phase.
package session

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/mdp/qrterminal/v3"
	"golang.org/x/time/rate"

	"horoscopebot/internal/runtime/supervisor"
	logx "horoscopebot/pkg/logx"
)

var (
	// ErrNotReady is returned by Send outside the Ready phase. The channel is not touched.
	ErrNotReady = errors.New("session: not ready")
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("session: closed")
)

// Channel is a messaging transport.
//
// Start launches the connection and returns; lifecycle events are delivered on
// events until ctx is cancelled or Stop is called. Implementations must not
// close events.
type Channel interface {
	Start(ctx context.Context, events chan<- Event) error
	Send(ctx context.Context, to, text string) error
	Stop(ctx context.Context) error
}

type Session struct {
	ch      Channel
	log     logx.Logger
	limiter *rate.Limiter
	qrOut   io.Writer

	mu      sync.Mutex
	state   State
	onReady []func(ctx context.Context)

	sup          *supervisor.Supervisor
	closed       atomic.Bool
	initOnce     sync.Once
	shutdownOnce sync.Once
}

type Option func(*Session)

func WithLogger(log logx.Logger) Option { return func(s *Session) { s.log = log } }

// WithRateLimit caps outbound sends per second (burst 1). <= 0 disables the limit.
func WithRateLimit(perSec float64) Option {
	return func(s *Session) {
		if perSec <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// WithQRWriter sets where pairing codes are rendered. nil disables rendering.
func WithQRWriter(w io.Writer) Option { return func(s *Session) { s.qrOut = w } }

func New(ch Channel, opts ...Option) *Session {
	s := &Session{
		ch:      ch,
		log:     logx.Nop(),
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		qrOut:   os.Stdout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnReady registers fn to run every time the session becomes Ready.
// Hooks run on the event goroutine and must not block.
func (s *Session) OnReady(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onReady = append(s.onReady, fn)
	s.mu.Unlock()
}

// State returns a snapshot of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize starts the channel and the event loop. It may be called once.
func (s *Session) Initialize(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	err := errors.New("session: already initialized")
	s.initOnce.Do(func() {
		sup := supervisor.NewSupervisor(ctx, supervisor.WithLogger(s.log))
		events := make(chan Event, 16)

		s.mu.Lock()
		s.sup = sup
		s.mu.Unlock()

		s.dispatch(sup.Context(), Event{Kind: EventInitialize})
		sup.Go0("session.events", func(c context.Context) { s.loop(c, events) })

		err = s.ch.Start(sup.Context(), events)
		if err != nil {
			err = errors.Wrap(err, "start channel")
			s.dispatch(sup.Context(), AuthFailure(err.Error()))
		}
	})
	return err
}

func (s *Session) loop(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.dispatch(ctx, ev)
		}
	}
}

// dispatch commits one transition and runs its reactions.
func (s *Session) dispatch(ctx context.Context, ev Event) {
	s.mu.Lock()
	prev := s.state
	next, ok := Transition(prev, ev)
	if ok {
		s.state = next
	}
	hooks := s.onReady
	s.mu.Unlock()

	if !ok {
		s.log.Debug("session event ignored", logx.String("event", ev.Kind.String()), logx.String("state", prev.String()))
		return
	}

	switch ev.Kind {
	case EventInitialize:
		s.log.Info("session initializing")
	case EventQR:
		s.log.Info("pairing code received; scan it with the messaging app")
		if s.qrOut != nil && ev.Code != "" {
			qrterminal.GenerateHalfBlock(ev.Code, qrterminal.L, s.qrOut)
		}
	case EventAuthenticated:
		s.log.Info("session authenticated")
	case EventReady:
		s.log.Info("session ready", logx.String("from", prev.String()))
		for _, fn := range hooks {
			s.runHook(ctx, fn)
		}
	case EventAuthFailure:
		s.log.Error("session authentication failed", logx.String("reason", next.Reason))
	case EventDisconnected:
		s.log.Warn("session disconnected", logx.String("reason", next.Reason))
	}
}

func (s *Session) runHook(ctx context.Context, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("ready hook panicked", logx.Any("panic", r))
		}
	}()
	fn(ctx)
}

// Send delivers text to the recipient. The state is read at call time (and again
// after rate limiting); outside Ready it returns ErrNotReady without reaching
// the channel.
func (s *Session) Send(ctx context.Context, to, text string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.State().Phase != Ready {
		return ErrNotReady
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "send rate limit")
		}
		if s.State().Phase != Ready {
			return ErrNotReady
		}
	}
	if err := s.ch.Send(ctx, to, text); err != nil {
		return errors.Wrap(err, "channel send")
	}
	return nil
}

// Shutdown stops the channel and the event loop. Only the first call reports a
// teardown error; later calls are no-ops and return nil.
func (s *Session) Shutdown(ctx context.Context) error {
	var errs error
	s.shutdownOnce.Do(func() {
		s.closed.Store(true)

		s.mu.Lock()
		sup := s.sup
		s.mu.Unlock()

		if sup != nil {
			if err := s.ch.Stop(ctx); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrap(err, "stop channel"))
			}
			if err := sup.Stop(ctx); err != nil {
				errs = errors.CombineErrors(errs, err)
			}
		}

		s.mu.Lock()
		prev := s.state
		s.state = State{Phase: Disconnected, Reason: "shutdown"}
		s.mu.Unlock()

		s.log.Info("session closed", logx.String("from", prev.String()))
	})
	return errs
}
