package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/Spok95/stock-ledger/internal/config"
	"github.com/Spok95/stock-ledger/internal/domain/stock"
	"github.com/Spok95/stock-ledger/internal/infra/db"
	httpx "github.com/Spok95/stock-ledger/internal/infra/http"
	"github.com/Spok95/stock-ledger/internal/infra/logger"
	"github.com/Spok95/stock-ledger/internal/infra/metrics"
	"github.com/Spok95/stock-ledger/internal/infra/notify"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "config/example.yaml", "path to the YAML config")
	reconcileOnce := pflag.Bool("reconcile-once", false, "run one reconciliation pass and exit")
	pflag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := db.Migrate(cfg.Postgres.DSN, log); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	loc, err := cfg.Location()
	if err != nil {
		log.Error("bad timezone", "tz", cfg.App.Timezone, "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("db connected")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine := stock.NewEngine(
		stock.NewRepo(pool, cfg.Ledger.TxRetries),
		stock.WithLogger(log),
		stock.WithLocation(loc),
		stock.WithPrefix(cfg.Ledger.IDPrefix),
		stock.WithNotifier(notifier(cfg, log)),
		stock.WithObserver(metrics.NewLedger(reg)),
	)

	if *reconcileOnce {
		found, err := engine.Reconcile(ctx)
		if err != nil {
			log.Error("reconcile failed", "err", err)
			os.Exit(1)
		}
		log.Info("reconcile finished", "discrepancies", len(found))
		if len(found) > 0 {
			os.Exit(2)
		}
		return
	}

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = reg
	}
	srv := httpx.New(cfg.HTTP.Addr, pool, gatherer)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	go reconcileLoop(ctx, engine, cfg.Ledger.ReconcileInterval, log)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}

func notifier(cfg config.Config, log *slog.Logger) stock.Notifier {
	sinks := notify.Multi{notify.NewLog(log)}
	if cfg.Telegram.Token == "" || cfg.Telegram.AdminChatID == 0 {
		return sinks
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint,
		&http.Client{Timeout: 5 * time.Second})
	if err != nil {
		log.Error("telegram disabled", "err", err)
		return sinks
	}
	log.Info("telegram notifications enabled", "bot", api.Self.UserName)
	return append(sinks, notify.NewTelegram(api, cfg.Telegram.AdminChatID, log))
}

func reconcileLoop(ctx context.Context, engine *stock.Engine, every time.Duration, log *slog.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := engine.Reconcile(ctx); err != nil && ctx.Err() == nil {
				log.Error("reconcile failed", "err", err)
			}
		}
	}
}
