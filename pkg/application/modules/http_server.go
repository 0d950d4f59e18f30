package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/int-code/git-sleuth/pkg/contextx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

// HTTPServer serves a handler for the lifetime of the group context. The API process runs one
// for ingress and the worker one for metrics, told apart in logs by name.
type HTTPServer struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Run binds addr before returning, so a taken port fails startup instead of a group member.
func (h HTTPServer) Run(
	gCtx context.Context,
	g *errgroup.Group,
	name, addr string,
	handler http.Handler,
) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(gCtx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s on %s: %w", name, addr, err)
	}

	srv := &http.Server{
		//nolint:exhaustruct
		BaseContext: func(net.Listener) context.Context {
			return gCtx
		},
		Handler:           handler,
		ReadTimeout:       h.ReadTimeout,
		ReadHeaderTimeout: h.ReadTimeout,
		WriteTimeout:      h.WriteTimeout,
		IdleTimeout:       h.IdleTimeout,
	}
	log := logger(gCtx).With(slog.String("server", name), slog.String("address", ln.Addr().String()))

	g.Go(func() error {
		log.Info("http server started")

		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server Serve error", slog.Any("error", err))
			return fmt.Errorf("srv.Serve: %w", err)
		}

		log.Info("http server stopped listening")
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		log.Info("http server is shutting down", slog.Duration("timeout", h.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), h.ShutdownTimeout)
		defer cancel()

		// open task streams are cut here; clients resume through GET /get-task
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown error", slog.Any("error", err))
			return fmt.Errorf("srv.Shutdown: %w", err)
		}

		log.Info("http server shut down gracefully")
		return nil
	})

	return nil
}
