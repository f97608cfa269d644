package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/polycopy/engine/config"
	"github.com/polycopy/engine/internal/adapters/notify"
	"github.com/polycopy/engine/internal/adapters/onchain"
	"github.com/polycopy/engine/internal/adapters/polymarket"
	"github.com/polycopy/engine/internal/adapters/storage"
	"github.com/polycopy/engine/internal/dispatch"
	"github.com/polycopy/engine/internal/domain"
	"github.com/polycopy/engine/internal/executor"
	"github.com/polycopy/engine/internal/monitor"
	"github.com/polycopy/engine/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("copybot starting",
		"config", *configPath,
		"interval", cfg.PollInterval(),
		"copy_ratio", cfg.Risk.CopyRatio,
		"max_position", cfg.Risk.MaxPositionSize,
	)

	if cfg.SigningKeyHex == "" {
		slog.Error("POLY_PRIVATE_KEY is not set; cannot sign orders")
		os.Exit(1)
	}
	signer, err := polymarket.NewSigner(cfg.SigningKeyHex)
	if err != nil {
		slog.Error("invalid signing key", "err", err)
		os.Exit(1)
	}

	credKey, err := cfg.CredentialsKey()
	if err != nil {
		slog.Error("invalid credentials key", "err", err)
		os.Exit(1)
	}
	if credKey == nil {
		slog.Warn("CREDENTIALS_KEY not set; stored credentials are disabled")
	}

	store, err := storage.NewStore(cfg.Storage.DSN, credKey)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.DataBase)
	trading := polymarket.NewTrading(client, signer)

	bus := notify.NewBus()
	console := notify.NewConsole()
	publisher := notify.Tee{bus, console}

	var resolvers []ports.CredentialResolver
	if credKey != nil {
		resolvers = append(resolvers, executor.StoredCredentials{Store: store})
		resolvers = append(resolvers, polymarket.NewDeriveResolver(client, signer, store))
	} else {
		resolvers = append(resolvers, polymarket.NewDeriveResolver(client, signer, nil))
	}

	exec := executor.New(executor.Config{}, trading, store, resolvers...)
	if cfg.Risk.CheckBalance {
		balances, err := onchain.NewBalanceReader(cfg.API.PolygonRPC, "")
		if err != nil {
			slog.Error("failed to connect to polygon rpc", "err", err, "rpc", cfg.API.PolygonRPC)
			os.Exit(1)
		}
		exec.WithBalanceChecker(balances)
	}

	mon := monitor.New(monitor.Config{
		PollInterval:       cfg.PollInterval(),
		TradeFetchLimit:    cfg.Monitor.TradeFetchLimit,
		CleanupEveryCycles: cfg.Monitor.CleanupEveryCycles,
		Retention:          cfg.Retention(),
	}, client, store, store)

	disp := dispatch.New(store, exec, publisher, cfg.RiskConfig())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Server.Addr != "" {
		startNotificationServer(ctx, cfg.Server.Addr, bus)
	}

	go forwardMonitorErrors(ctx, mon.Errors(), store, publisher)

	if err := mon.Start(ctx); err != nil {
		slog.Error("failed to start monitor", "err", err)
		os.Exit(1)
	}

	disp.Run(ctx, mon.Events())

	mon.Stop()
	console.PrintSummary()
	slog.Info("copybot stopped cleanly")
}

// forwardMonitorErrors publishes contained poll failures to every subscriber
// of the affected wallet.
func forwardMonitorErrors(ctx context.Context, errs <-chan domain.MonitorError, directory ports.SubscriptionDirectory, publisher ports.Publisher) {
	for {
		select {
		case <-ctx.Done():
			return
		case me, ok := <-errs:
			if !ok {
				return
			}
			users, err := directory.SubscribersOf(ctx, me.Wallet)
			if err != nil {
				slog.Warn("failed to resolve subscribers for monitor error", "wallet", me.Wallet, "err", err)
				continue
			}
			for _, userID := range users {
				publisher.Publish(domain.Event{
					ID:     uuid.NewString(),
					Kind:   domain.EventMonitorError,
					UserID: userID,
					Wallet: me.Wallet,
					Error:  me.Err.Error(),
					At:     time.Now(),
				})
			}
		}
	}
}

// startNotificationServer serves the websocket endpoint until ctx ends.
func startNotificationServer(ctx context.Context, addr string, bus *notify.Bus) {
	mux := http.NewServeMux()
	mux.Handle("/ws", notify.NewHub(bus))

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("notification server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("notification server failed", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
