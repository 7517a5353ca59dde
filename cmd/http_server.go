package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/marketplace-payments/internal"
	"github.com/frahmantamala/marketplace-payments/internal/breakdown"
	"github.com/frahmantamala/marketplace-payments/internal/core/events"
	directorydb "github.com/frahmantamala/marketplace-payments/internal/directory/postgres"
	"github.com/frahmantamala/marketplace-payments/internal/escrow"
	escrowdb "github.com/frahmantamala/marketplace-payments/internal/escrow/postgres"
	"github.com/frahmantamala/marketplace-payments/internal/gateway"
	"github.com/frahmantamala/marketplace-payments/internal/notification"
	"github.com/frahmantamala/marketplace-payments/internal/payment"
	paymentdb "github.com/frahmantamala/marketplace-payments/internal/payment/postgres"
	"github.com/frahmantamala/marketplace-payments/internal/payout"
	payoutdb "github.com/frahmantamala/marketplace-payments/internal/payout/postgres"
	"github.com/frahmantamala/marketplace-payments/internal/rates"
	"github.com/frahmantamala/marketplace-payments/internal/transport"
	"github.com/frahmantamala/marketplace-payments/internal/transport/rest"
	"github.com/frahmantamala/marketplace-payments/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config         *internal.Config
	DB             *sqlx.DB
	RateTable      *rates.Table
	Router         *chi.Mux
	PaymentHandler *payment.Handler
	WebhookHandler *payment.WebhookHandler
	EscrowHandler  *escrow.Handler
	PayoutHandler  *payout.Handler
	Logger         *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling: SIGHUP reloads the rate table, SIGINT/SIGTERM shut down
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				if err := deps.RateTable.Reload(deps.Config.Rates.Source); err != nil {
					slog.Error("Rate table reload failed, keeping current rates", "error", err)
				} else {
					slog.Info("Rate table reloaded", "source", deps.Config.Rates.Source)
				}
				continue
			}
			slog.Info("Received signal, shutting down...", "signal", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				slog.Error("Server shutdown error", "error", err)
			}
			if err := deps.DB.Close(); err != nil {
				slog.Error("Database close error", "error", err)
			}
			slog.Info("Server stopped")
			return
		case err := <-serverErrChan:
			if err != nil && err != http.ErrServerClosed {
				slog.Error("Server failed to start", "error", err)
				os.Exit(1)
			}
			slog.Info("Server stopped")
			return
		}
	}
}

func setupRoutes(deps *Dependencies) {
	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.PaymentHandler, deps.WebhookHandler, deps.EscrowHandler, deps.PayoutHandler, deps.Logger)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	appLogger := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpg.New(gormpg.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	rateTable, err := rates.NewTableFromFile(config.Rates.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to load rate table: %w", err)
	}

	eventBus := events.NewEventBus(appLogger)
	calculator := breakdown.NewCalculator(rateTable)

	adapter := gateway.NewPaystackClient(gateway.PaystackConfig{
		BaseURL:    config.Gateway.BaseURL,
		SecretKey:  config.Gateway.SecretKey,
		Timeout:    config.Gateway.Timeout,
		MaxRetries: config.Gateway.MaxRetries,
	}, appLogger)

	paymentRepo := paymentdb.NewPaymentRepository(gormDB)
	escrowRepo := escrowdb.NewEscrowRepository(gormDB)
	payoutRepo := payoutdb.NewPayoutRepository(gormDB)
	directoryRepo := directorydb.NewDirectoryRepository(gormDB)

	paymentService := payment.NewService(paymentRepo, adapter, calculator, eventBus, config.Gateway.CallbackURL, appLogger)
	payoutScheduler := payout.NewScheduler(payoutRepo, adapter, directoryRepo, eventBus, appLogger)
	escrowService := escrow.NewService(escrowRepo, paymentService, payoutScheduler, eventBus, appLogger)
	paymentService.AttachCollaborators(escrowService, payoutScheduler)

	notifier := notification.NewLogNotifier(appLogger)
	notification.NewEventHandler(notifier, appLogger).RegisterEventHandlers(eventBus)

	baseHandler := transport.NewBaseHandler(appLogger)
	paymentHandler := payment.NewHandler(baseHandler, paymentService, appLogger)
	webhookHandler := payment.NewWebhookHandler(baseHandler, paymentService, appLogger)
	escrowHandler := escrow.NewHandler(baseHandler, escrowService, appLogger)
	payoutHandler := payout.NewHandler(baseHandler, payoutScheduler, appLogger)

	return &Dependencies{
		Config:         config,
		Logger:         appLogger,
		DB:             db,
		RateTable:      rateTable,
		Router:         chi.NewRouter(),
		PaymentHandler: paymentHandler,
		WebhookHandler: webhookHandler,
		EscrowHandler:  escrowHandler,
		PayoutHandler:  payoutHandler,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
