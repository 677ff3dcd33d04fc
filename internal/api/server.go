package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	coreconfig "github.com/m3rciful/telelink/core/config"
	"github.com/m3rciful/telelink/core/logger"
)

// Server runs the backend HTTP listener alongside the bot.
type Server struct {
	srv     *http.Server
	handler *Handler
}

// NewServer builds the listener from config. The router is assembled here so
// callers only wire the handler.
func NewServer(cfg *coreconfig.Config, h *Handler) *Server {
	addr := fmt.Sprintf("%s:%d", cfg.API.Listen, cfg.API.Port)
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(cfg, h),
			ReadHeaderTimeout: 10 * time.Second,
		},
		handler: h,
	}
}

// RunHTTP serves until ctx is cancelled, then drains in-flight requests and
// waits for background record patches.
func (s *Server) RunHTTP(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.API.Info("http listener started", slog.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		logger.API.Warn("http shutdown", slog.String("err", err.Error()))
	}
	s.handler.Wait()
	return <-errCh
}
