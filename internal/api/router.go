package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	coreconfig "github.com/m3rciful/telelink/core/config"
	"github.com/m3rciful/telelink/core/logger"
)

// NewRouter assembles the account-linking HTTP surface.
func NewRouter(cfg *coreconfig.Config, h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.API.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// The public OTP endpoints face the open internet; the bot-facing routes
	// sit behind the bot's own Telegram-side limiter.
	publicRL := newRateLimiter(rate.Limit(cfg.API.RatePerSecond), cfg.API.RateBurst)

	r.Get("/healthz", h.Health)
	r.Route("/api/telegram", func(r chi.Router) {
		r.With(publicRL.Limit).Post("/request-otp", h.RequestOTP)
		r.With(publicRL.Limit).Post("/verify-otp", h.VerifyOTP)
		r.Post("/verifyTelegram", h.ConfirmLink)
		r.Put("/update-username", h.UpdateUsername)
	})

	return r
}

// requestLogger emits one summary line per request with the correlation id
// threaded through the logger context.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithRID(r.Context(), chimiddleware.GetReqID(r.Context()))
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.API.LogAttrs(ctx, slog.LevelInfo, "http.request",
			slog.String("event", "http.request"),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", logger.Took(start)),
		)
	})
}
