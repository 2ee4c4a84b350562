package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	logx "horoscopebot/pkg/logx"
)

// Server exposes Routes on addr until its context is cancelled.
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	log      logx.Logger
}

func NewServer(addr string, gatherer prometheus.Gatherer, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{addr: strings.TrimSpace(addr), gatherer: gatherer, log: log}
}

// Serve blocks until ctx is done. It returns context.Canceled on a normal stop.
func (s *Server) Serve(ctx context.Context) error {
	if !isLoopbackAddr(s.addr) {
		s.log.Warn("metrics listener bound to a non-loopback address", logx.String("addr", s.addr))
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.log.Error("metrics listen failed", logx.String("addr", s.addr), logx.Err(err))
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           Routes(s.gatherer),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	defer func() { _ = srv.Close() }()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("metrics started", logx.String("addr", ln.Addr().String()))
	err := srv.Serve(ln)
	if ctx.Err() != nil {
		s.log.Info("metrics stopped")
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("metrics server exited unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
