package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/m3rciful/telelink/core/bootstrap"
	corecmd "github.com/m3rciful/telelink/core/cmd"
	coreconfig "github.com/m3rciful/telelink/core/config"
	coredatabase "github.com/m3rciful/telelink/core/database"
	tg "github.com/m3rciful/telelink/core/telegram"
	"github.com/m3rciful/telelink/internal/api"
	"github.com/m3rciful/telelink/internal/bot"
	"github.com/m3rciful/telelink/internal/botapi"
	"github.com/m3rciful/telelink/internal/codestore"
	"github.com/m3rciful/telelink/internal/otp"
	"github.com/m3rciful/telelink/internal/recordstore"
)

type application struct {
	cfg *coreconfig.Config
	bot *bot.App
	api *api.Server
}

func (a *application) CoreConfig() *coreconfig.Config { return a.cfg }

func (a *application) TelegramRunOptions() (tg.RunOptions, error) {
	return a.bot.TelegramRunOptions()
}

func (a *application) RunHTTP(ctx context.Context) error {
	return a.api.RunHTTP(ctx)
}

type configCarrier struct {
	cfg *coreconfig.Config
}

func (c *configCarrier) CoreConfig() *coreconfig.Config { return c.cfg }

func loadConfig(path string) (corecmd.ConfigCarrier, error) {
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return &configCarrier{cfg: cfg}, nil
}

func buildApp(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()
	usePostgres := cfg.RecordStore.Driver == coreconfig.RecordDriverPostgres

	var dbCfg coredatabase.Config
	if usePostgres {
		if err := envconfig.Process("", &dbCfg); err != nil {
			return nil, fmt.Errorf("database config: %w", err)
		}
	}

	boot, err := bootstrap.Run(bootstrap.Options{
		Config:         cfg,
		Database:       dbCfg,
		EnableDatabase: usePostgres,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := codestore.NewRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}

	var records recordstore.LinkStore
	if usePostgres {
		records = recordstore.NewPostgres(boot.DB)
	} else {
		records = recordstore.NewSupabase(recordstore.SupabaseOptions{
			BaseURL: cfg.RecordStore.SupabaseURL,
			APIKey:  cfg.RecordStore.SupabaseKey,
			Table:   cfg.RecordStore.SupabaseTable,
		})
	}

	codeTTL := time.Duration(cfg.Link.CodeTTLSeconds) * time.Second

	issuer := otp.NewIssuer(otp.IssuerOptions{
		Store:        store,
		TTL:          codeTTL,
		BotUsername:  cfg.Telegram.Username,
		TelegramBase: cfg.Link.TelegramBase,
	})
	verifier := otp.NewVerifier(otp.VerifierOptions{
		Store:   store,
		Records: records,
	})
	confirmer := otp.NewConfirmer(otp.ConfirmerOptions{
		Store:    store,
		Records:  records,
		BotToken: cfg.Telegram.Token,
	})

	apiServer := api.NewServer(cfg, api.NewHandler(issuer, verifier, confirmer, records))

	botApp := bot.New(bot.Options{
		Config:    cfg,
		Store:     store,
		Collector: otp.NewCollector(store, codeTTL),
		Backend: botapi.NewClient(botapi.Options{
			BaseURL:  cfg.Backend.BaseURL,
			BotToken: cfg.Telegram.Token,
		}),
	})

	return &application{cfg: cfg, bot: botApp, api: apiServer}, nil
}

func main() {
	_ = godotenv.Load()

	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yml",
		LoadConfig:        loadConfig,
		Bootstrap:         buildApp,
	})
	if err != nil {
		log.Fatalf("telelink: %v", err)
	}
}
