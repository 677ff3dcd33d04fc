// Package bot implements the Telegram side of the account-linking flow on top
// of the core bot framework.
package bot

import (
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/telelink/core/config"
	tg "github.com/m3rciful/telelink/core/telegram"
	"github.com/m3rciful/telelink/core/telegram/commands"
	tghelpers "github.com/m3rciful/telelink/core/telegram/helpers"
	"github.com/m3rciful/telelink/core/telegram/middleware"
	"github.com/m3rciful/telelink/core/telegram/router"
	"github.com/m3rciful/telelink/core/telegram/state"
	"github.com/m3rciful/telelink/internal/botapi"
	"github.com/m3rciful/telelink/internal/codestore"
	"github.com/m3rciful/telelink/internal/otp"
)

// Callback keys wired into inline keyboards.
const (
	cbVerifyTG   = "VERIFY_TG"
	cbPaySS      = "PAY_SS"
	cbConfirmYes = "CONFIRM_YES"
	cbConfirmNo  = "CONFIRM_NO"
	cbCancel     = "VERIFY_CANCEL"
)

// Conversation states of the link dialog.
const (
	stateWaitOTP state.State = "verify_wait_otp"
	stateConfirm state.State = "verify_confirm"
)

// claimKey is the session temp-data slot holding the pending VerificationClaim.
const claimKey = "verify_claim"

// Options configures New.
type Options struct {
	Config    *coreconfig.Config
	Store     codestore.Store
	Collector *otp.Collector
	Backend   *botapi.Client

	// Sessions overrides the default TTL-bound in-memory manager (tests).
	Sessions state.Manager
}

// App is the bot application: registry, session manager, and the handlers
// driving the link conversation.
type App struct {
	cfg       *coreconfig.Config
	store     codestore.Store
	collector *otp.Collector
	backend   *botapi.Client
	sessions  state.Manager
	registry  *tg.Registry
}

// New builds the bot application and registers its handlers.
func New(opts Options) *App {
	sessions := opts.Sessions
	if sessions == nil {
		ttl := time.Duration(opts.Config.Link.ConversationTTLSeconds) * time.Second
		sessions = state.NewMemoryManagerTTL(ttl)
	}
	a := &App{
		cfg:       opts.Config,
		store:     opts.Store,
		collector: opts.Collector,
		backend:   opts.Backend,
		sessions:  sessions,
		registry:  tg.NewRegistry(),
	}
	a.register()
	return a
}

func (a *App) register() {
	a.registry.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Open the main menu",
	})
	a.registry.RegisterCommand("/verify_telegram", commands.Command{
		Handler:     a.startVerify,
		Description: "Link your account to Telegram",
	})

	// Confirm buttons only make sense while the dialog is in the confirm
	// state; anything else is a stale keyboard.
	confirmGate := middleware.State(sessionStates{a.sessions}, string(stateConfirm), a.staleConfirm)

	_ = a.registry.RegisterCallback(cbVerifyTG, a.startVerify)
	_ = a.registry.RegisterCallback(cbPaySS, a.handlePayScreenshot)
	_ = a.registry.RegisterCallback(cbConfirmYes, confirmGate(a.confirmYes))
	_ = a.registry.RegisterCallback(cbConfirmNo, confirmGate(a.confirmNo))
	_ = a.registry.RegisterCallback(cbCancel, a.cancelVerify)

	state.RegisterHandler(stateWaitOTP, a.gotOTP)
}

// sessionStates adapts the session manager to the middleware's state view.
type sessionStates struct {
	m state.Manager
}

func (s sessionStates) GetState(userID int64) string {
	return string(s.m.GetState(userID))
}

func (a *App) staleConfirm(c tele.Context) error {
	return tghelpers.SendText(c, "This confirmation has expired. Please start over with /verify_telegram.")
}

// Registry exposes the command/callback registry (tests, diagnostics).
func (a *App) Registry() *tg.Registry { return a.registry }

// Sessions exposes the conversation session manager.
func (a *App) Sessions() state.Manager { return a.sessions }

// TelegramRunOptions assembles the framework run options for this application.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.sessions, a.registry, router.TextOptions{})...)

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    a.registry,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
	}, nil
}
