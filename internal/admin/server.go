package admin

import (
	"context"
	"net"
	"net/http"
	"time"

	"reposerve/internal/errors"
	"reposerve/util"
)

// shutdownGrace bounds how long in-flight admin requests may run after
// the context is cancelled.
const shutdownGrace = 5 * time.Second

// Server is the admin HTTP listener.
type Server struct {
	Addr     string
	Handler  http.Handler
	Logger   *util.Logger
	Listener net.Listener // optional; overrides Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln := s.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.Addr)
		if err != nil {
			return errors.Wrap("listen", s.Addr, err)
		}
	}

	srv := &http.Server{
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("admin endpoint on http://%s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return errors.Wrapf(err, "admin server")
	}
}
