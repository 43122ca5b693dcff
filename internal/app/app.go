package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradewatch/cryptobot/internal/config"
	"github.com/tradewatch/cryptobot/internal/coordinator"
	"github.com/tradewatch/cryptobot/internal/exchange"
	"github.com/tradewatch/cryptobot/internal/store"
	"github.com/tradewatch/cryptobot/internal/worker"
	"github.com/tradewatch/cryptobot/pkg/logger"
	"github.com/tradewatch/cryptobot/pkg/shutdown"
)

// App owns the resources shared by every worker process: config,
// logger, state store, lease coordinator, exchange adapter, health
// endpoint and the shutdown manager. Each cmd main calls Init, adds its
// runners, then Run.
type App struct {
	Cfg      config.Config
	Store    *store.Store
	Coord    *coordinator.Coordinator
	Exchange exchange.Exchange
	WorkerID string

	health   *worker.HealthServer
	shutdown *shutdown.Manager
	runners  []*worker.Runner
}

// Init loads and validates configuration, then opens every shared
// resource. Invalid configuration prints all problems and exits.
func Init(workerName string) (*App, error) {
	cfg := config.Load()
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
		return nil, fmt.Errorf("invalid configuration (%d problems)", len(errs))
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	coord, err := coordinator.Open(cfg.BadgerDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open coordinator: %w", err)
	}

	var ex exchange.Exchange
	if cfg.PaperTrading {
		logger.Warnf("paper trading mode: orders never reach the exchange")
		ex = exchange.NewPaper(decimal.NewFromInt(10000))
	} else {
		ex = exchange.NewBingX(exchange.BingXOptions{
			BaseURL:    cfg.ExchangeBaseURL,
			APIKey:     cfg.APIKey,
			APISecret:  cfg.APISecret,
			Timeout:    cfg.RequestTimeout,
			RateBudget: cfg.RateLimitBudget,
		})
	}

	hostname, _ := os.Hostname()
	app := &App{
		Cfg:      cfg,
		Store:    st,
		Coord:    coord,
		Exchange: ex,
		WorkerID: fmt.Sprintf("%s-%s-%s", workerName, hostname, uuid.NewString()[:8]),
		health:   worker.StartHealthServer(cfg.HealthAddr, workerName),
		shutdown: shutdown.NewManager(),
	}
	app.shutdown.OnShutdown(func(ctx context.Context) {
		if err := app.health.Shutdown(ctx); err != nil {
			logger.Warnf("health server shutdown: %v", err)
		}
	})
	logger.WithField("worker_id", app.WorkerID).Infof("%s initialized", workerName)
	return app, nil
}

// AddRunner registers an interval loop to drive in Run.
func (a *App) AddRunner(r *worker.Runner) {
	a.runners = append(a.runners, r)
}

// Run drives the registered runners until SIGINT/SIGTERM, then shuts
// everything down. The in-flight cycle observes the cancelled context
// and finishes its lease-protected unit before the stores close.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, len(a.runners))
	var wg sync.WaitGroup
	for _, r := range a.runners {
		wg.Add(1)
		go func(r *worker.Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				errCh <- err
				stop()
			}
		}(r)
	}
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.shutdown.Shutdown(shutdownCtx)

	if err := a.Coord.Close(); err != nil {
		logger.Warnf("close coordinator: %v", err)
	}
	if err := a.Store.Close(); err != nil {
		logger.Warnf("close store: %v", err)
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
