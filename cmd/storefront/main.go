package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	cfg "github.com/sand/storefront/backend/config"
	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/delivery"
	"github.com/sand/storefront/backend/internal/handlers"
	"github.com/sand/storefront/backend/internal/ledger"
	"github.com/sand/storefront/backend/internal/notify"
	"github.com/sand/storefront/backend/internal/usecases"
	"github.com/sand/storefront/backend/internal/usecases/mocked"
	"github.com/sand/storefront/backend/internal/usecases/repository"
	"github.com/sand/storefront/backend/internal/workers"
	"github.com/sand/storefront/backend/pkg/database"
)

// Server timeout constants.
const (
	readTimeoutSeconds     = 15
	writeTimeoutSeconds    = 15
	idleTimeoutSeconds     = 60
	shutdownTimeoutSeconds = 5
)

// stores groups the persistence ports behind one backend.
type stores struct {
	orders     ports.OrderStore
	accounts   ports.AccountStore
	inventory  ports.InventoryStore
	catalog    ports.CatalogStore
	purchases  ports.PurchaseStore
	review     ports.ReviewQueue
	transactor ports.Transactor
	close      func()
}

func main() {
	// Устанавливаем timezone UTC
	time.Local = time.UTC

	config, err := cfg.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	opts := &slog.HandlerOptions{Level: config.Log.Level}
	if config.App.Debug {
		opts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	logger.Warn("Starting application with configuration",
		"debug", config.App.Debug,
		"storage", config.App.Storage,
		"network", config.Blockchain.Network,
		"receiving_address", config.ReceivingAddress,
		"server_port", config.HTTP.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, logger, config)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		log.Fatal(err)
	}
	defer st.close()

	ledgerClient, closeLedger, err := buildLedger(ctx, logger, config)
	if err != nil {
		logger.Error("Failed to build ledger client", "error", err)
		log.Fatal(err)
	}
	defer closeLedger()

	minAmount, _ := config.MinRechargeAmount()
	markup, _ := config.DefaultMarkupAmount()

	hub := notify.NewHub(logger)

	fingerprint := usecases.NewFingerprintAllocator(logger, st.orders, usecases.CryptoCodes, time.Now,
		config.CodeWidth, config.MaxAttempts, config.GraceWindow())
	recharges := usecases.NewRechargeService(logger, st.orders, fingerprint, time.Now, usecases.RechargeSettings{
		Network:   config.Blockchain.Network,
		Token:     config.TokenSymbol,
		Address:   config.ReceivingAddress,
		MinAmount: minAmount,
		TTL:       config.OrderTTL(),
	})
	settlement := usecases.NewSettlementCoordinator(logger, st.orders, st.accounts, st.review, ledgerClient,
		st.transactor, hub, time.Now, usecases.SettlementOptions{
			Address:      config.ReceivingAddress,
			Grace:        config.GraceWindow(),
			BatchSize:    config.BatchSize,
			FetchLimit:   config.FetchLimit,
			LateLookback: config.LateMatchLookback(),
		})
	allocator := usecases.NewInventoryAllocator(logger, st.inventory)
	fileDelivery := delivery.NewFileDelivery(logger, st.inventory,
		config.Delivery.BaseDir, config.Delivery.OutDir, config.MaxArchiveBytes, time.Now)
	purchases := usecases.NewPurchaseCoordinator(logger, st.catalog, allocator, st.accounts, st.purchases,
		st.transactor, fileDelivery, hub, time.Now, markup)

	initAndRunWorkers(ctx, logger, config, settlement, st.orders)

	httpHandler := handlers.NewHTTPHandler(logger, recharges, settlement, purchases, allocator)
	wsHandler := handlers.NewWebSocketHandler(logger, hub)

	router := mux.NewRouter()

	// Register WebSocket routes before HTTP routes
	wsHandler.RegisterRoutes(router)
	httpHandler.RegisterRoutes(router)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + config.HTTP.Port,
		Handler:      c.Handler(router),
		ReadTimeout:  readTimeoutSeconds * time.Second,
		WriteTimeout: writeTimeoutSeconds * time.Second,
		IdleTimeout:  idleTimeoutSeconds * time.Second,
	}

	go func() {
		logger.Info("Starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return
	}

	logger.Info("Server exited properly")
}

func openStores(ctx context.Context, logger *slog.Logger, config *cfg.Config) (*stores, error) {
	if config.App.Storage == "memory" {
		memory := mocked.NewMemory(logger)
		memory.SeedDemoCatalog()
		logger.Warn("Using in-memory storage, state is lost on restart")
		return &stores{
			orders:     memory,
			accounts:   memory,
			inventory:  memory,
			catalog:    memory,
			purchases:  memory,
			review:     memory,
			transactor: mocked.NewTransactor(memory),
			close:      func() {},
		}, nil
	}

	pg, err := database.New(ctx, config.DB.DatabaseURL,
		database.MaxPoolSize(config.DB.PoolMax),
		database.ConnTimeout(time.Duration(config.DB.ConnectTimeout)*time.Second),
		database.HealthCheckPeriod(time.Duration(config.DB.HealthCheckPeriod)*time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}

	migrationsPath := resolveMigrationsPath(config.DB.MigrationsPath)
	logger.Info("Running database migrations", "path", migrationsPath)
	if err = database.RunMigrations(logger, config.DB.DatabaseURL, migrationsPath); err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	return &stores{
		orders:     repository.NewOrdersRepository(logger, pg),
		accounts:   repository.NewAccountsRepository(logger, pg),
		inventory:  repository.NewInventoryRepository(logger, pg),
		catalog:    repository.NewCatalogRepository(logger, pg),
		purchases:  repository.NewPurchasesRepository(logger, pg),
		review:     repository.NewReviewQueueRepository(logger, pg),
		transactor: pg.Transactor,
		close:      pg.Close,
	}, nil
}

// resolveMigrationsPath пробует путь из конфига, затем уровень выше
func resolveMigrationsPath(configured string) string {
	if filepath.IsAbs(configured) {
		return configured
	}
	workDir, err := os.Getwd()
	if err != nil {
		return configured
	}
	for _, candidate := range []string{filepath.Join(workDir, configured), filepath.Join(workDir, "..", configured)} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return configured
}

// buildLedger chains the providers of the configured network, optionally behind a redis cache.
func buildLedger(ctx context.Context, logger *slog.Logger, config *cfg.Config) (ports.LedgerClient, func(), error) {
	httpClient := &http.Client{Timeout: config.RequestTimeout()}
	contract := config.TokenContract
	if cfg.ValidateAddress(config.Blockchain.Network, contract) != nil {
		contract = ""
	}

	closers := make([]func(), 0)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	var client ports.LedgerClient
	switch config.Blockchain.Network {
	case cfg.NetworkTron:
		grid := ledger.NewTronGrid(logger, httpClient, config.TronGridAPIBase, config.TronAPIKeyHeader, contract)
		public := make([]ledger.Provider, 0, len(config.TronScanEndpoints))
		for _, endpoint := range config.TronScanEndpoints {
			public = append(public, ledger.NewTronScan(logger, httpClient, endpoint, contract))
		}
		client = ledger.NewClient(logger, grid, config.TronAPIKeys, public...)
	case cfg.NetworkBSC:
		public := make([]ledger.Provider, 0, len(config.EVMRPCURLs))
		for _, url := range config.EVMRPCURLs {
			evm := ledger.NewEVM(logger, url, contract, 0, config.EVMLookbackBlocks)
			closers = append(closers, evm.Close)
			public = append(public, evm)
		}
		client = ledger.NewClient(logger, nil, nil, public...)
	case cfg.NetworkSolana:
		public := make([]ledger.Provider, 0, len(config.SolanaRPCURLs))
		for _, url := range config.SolanaRPCURLs {
			sol, err := ledger.NewSolana(logger, url, contract)
			if err != nil {
				return nil, closeAll, err
			}
			public = append(public, sol)
		}
		client = ledger.NewClient(logger, nil, nil, public...)
	default:
		return nil, closeAll, fmt.Errorf("unsupported network %q", config.Blockchain.Network)
	}

	if config.Redis.Addr == "" {
		return client, closeAll, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable, ledger cache disabled", "addr", config.Redis.Addr, "error", err)
		_ = rdb.Close()
		return client, closeAll, nil
	}
	closers = append(closers, func() { _ = rdb.Close() })

	return ledger.NewCachedClient(logger, client, rdb, config.LedgerCacheTTL()), closeAll, nil
}

func initAndRunWorkers(
	ctx context.Context,
	logger *slog.Logger,
	config *cfg.Config,
	settlement *usecases.SettlementCoordinator,
	orders workers.OrderExpirer,
) {
	scheduler := workers.NewReconciliationScheduler(logger, settlement, config.PollInterval())
	orderCleaner := workers.NewOrderCleaner(logger, orders, time.Now, config.ExpirySweepInterval())

	go scheduler.Start(ctx)
	go orderCleaner.Start(ctx)

	logger.Info("All workers initialized and started")
}
