package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/guestledger/internal/config"
	"github.com/MarkoPoloResearchLab/guestledger/internal/httpapi"
	"github.com/MarkoPoloResearchLab/guestledger/internal/metrics"
	"github.com/MarkoPoloResearchLab/guestledger/internal/oplog"
	"github.com/MarkoPoloResearchLab/guestledger/internal/reportcache"
	"github.com/MarkoPoloResearchLab/guestledger/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/guestledger/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
	"github.com/MarkoPoloResearchLab/guestledger/pkg/revenue"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	envPrefix = "GUESTLEDGER"
	envFile   = ".env"

	flagDatabaseURL       = "database-url"
	flagStoreBackend      = "store-backend"
	flagListenAddr        = "listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagRequestTimeout    = "request-timeout"
	flagTimezone          = "timezone"
	flagRedisAddr         = "redis-addr"
	flagReportCacheTTL    = "report-cache-ttl"
	flagRegistrationRPS   = "registration-rps"
	flagRegistrationBurst = "registration-burst"
	flagWelcomeBonus      = "welcome-bonus"
	flagPurchaseRate      = "purchase-rate-bps"
	flagLookbackDays      = "lookback-days"
	flagRoomNumber        = "room-number"
	flagHostID            = "host-id"
)

var configFlags = []string{
	flagDatabaseURL,
	flagStoreBackend,
	flagListenAddr,
	flagAllowedOrigins,
	flagRequestTimeout,
	flagTimezone,
	flagRedisAddr,
	flagReportCacheTTL,
	flagRegistrationRPS,
	flagRegistrationBurst,
	flagWelcomeBonus,
	flagPurchaseRate,
	flagLookbackDays,
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "guestledgerd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	settings := viper.New()
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "guestledgerd",
		Short:         "Guest loyalty ledger and order reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(cmd, settings)
			if err != nil {
				return err
			}
			*cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *cfg)
		},
	}

	defaults := config.Default()
	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, defaults.DatabaseURL, "Database URL (postgres://, mysql://, sqlite:// or a sqlite path)")
	flags.String(flagStoreBackend, defaults.StoreBackend, "Store implementation: gorm or pgx")
	flags.String(flagListenAddr, defaults.ListenAddr, "HTTP listen address")
	flags.String(flagAllowedOrigins, strings.Join(defaults.AllowedOrigins, ","), "Comma-separated CORS origins")
	flags.Duration(flagRequestTimeout, defaults.RequestTimeout, "Per-request store timeout")
	flags.String(flagTimezone, defaults.Timezone, "Business timezone for check-in dates and revenue windows")
	flags.String(flagRedisAddr, "", "Redis address for the revenue report cache (optional)")
	flags.Duration(flagReportCacheTTL, defaults.ReportCacheTTL, "Revenue report cache TTL")
	flags.Float64(flagRegistrationRPS, defaults.RegistrationRPS, "Registrations per second allowed per client IP")
	flags.Int(flagRegistrationBurst, defaults.RegistrationBurst, "Registration burst per client IP")
	flags.Int64(flagWelcomeBonus, defaults.WelcomeBonus, "Points granted to a newly created guest")
	flags.Int64(flagPurchaseRate, defaults.PurchaseRateBasisPoints, "Purchase bonus rate in basis points per currency unit")
	flags.Int(flagLookbackDays, defaults.LookbackDays, "Days of anonymous room orders linked at registration")

	cmd.AddCommand(newMigrateCommand(cfg), newSeedRoomCommand(cfg))
	return cmd
}

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cleanup, err := openMigrated(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newSeedRoomCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-room",
		Short: "Provision a room with its default booking",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawNumber, _ := cmd.Flags().GetString(flagRoomNumber)
			hostID, _ := cmd.Flags().GetString(flagHostID)
			roomNumber, err := loyalty.NewRoomNumber(rawNumber)
			if err != nil {
				return err
			}
			db, cleanup, err := openMigrated(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			booking, err := gormstore.New(db).CreateRoom(cmd.Context(), gormstore.RoomInput{RoomNumber: roomNumber, HostID: hostID})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "room %s: room_id=%s default_booking_id=%s\n", roomNumber.String(), booking.RoomID.String(), booking.ID.String())
			return nil
		},
	}
	cmd.Flags().String(flagRoomNumber, "", "Room number printed on orders")
	cmd.Flags().String(flagHostID, "", "Host that owns the room")
	return cmd
}

func loadConfig(cmd *cobra.Command, settings *viper.Viper) (config.Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	for _, name := range configFlags {
		if err := settings.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return config.Config{}, err
		}
	}
	if err := settings.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return config.Config{}, err
	}

	cfg := config.Config{
		DatabaseURL:             settings.GetString(flagDatabaseURL),
		StoreBackend:            settings.GetString(flagStoreBackend),
		ListenAddr:              settings.GetString(flagListenAddr),
		AllowedOrigins:          config.ParseAllowedOrigins(settings.GetString(flagAllowedOrigins)),
		RequestTimeout:          settings.GetDuration(flagRequestTimeout),
		Timezone:                settings.GetString(flagTimezone),
		RedisAddr:               settings.GetString(flagRedisAddr),
		ReportCacheTTL:          settings.GetDuration(flagReportCacheTTL),
		RegistrationRPS:         settings.GetFloat64(flagRegistrationRPS),
		RegistrationBurst:       settings.GetInt(flagRegistrationBurst),
		WelcomeBonus:            settings.GetInt64(flagWelcomeBonus),
		PurchaseRateBasisPoints: settings.GetInt64(flagPurchaseRate),
		LookbackDays:            settings.GetInt(flagLookbackDays),
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openMigrated(ctx context.Context, databaseURL string) (*gorm.DB, func() error, error) {
	db, cleanup, _, err := openDatabase(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database open: %w", err)
	}
	if err := gormstore.Migrate(ctx, db); err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, cleanup, nil
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	location, err := cfg.Location()
	if err != nil {
		return err
	}

	gormDB, cleanup, err := openMigrated(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	var store loyalty.Store = gormstore.New(gormDB)
	if cfg.StoreBackend == config.StoreBackendPgx {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("pgx pool: %w", err)
		}
		defer pool.Close()
		store = pgstore.New(pool)
	}

	metrics.Register()
	clock := func() time.Time { return time.Now().UTC() }
	ledger, err := loyalty.NewService(store, clock, loyalty.WithOperationLogger(oplog.New(logger)))
	if err != nil {
		return fmt.Errorf("ledger service init: %w", err)
	}
	registrar, err := loyalty.NewRegistrar(ledger,
		loyalty.WithRegistrationPolicy(cfg.RegistrationPolicy()),
		loyalty.WithLocation(location),
	)
	if err != nil {
		return fmt.Errorf("registrar init: %w", err)
	}
	orders, err := loyalty.NewOrderAggregator(store)
	if err != nil {
		return fmt.Errorf("order aggregator init: %w", err)
	}

	revenueOptions := []revenue.Option{revenue.WithLogger(logger)}
	reportCacheEnabled := false
	if cfg.RedisAddr != "" {
		client := reportcache.NewRedisClient(cfg.RedisAddr)
		defer func() { _ = client.Close() }()
		if err := reportcache.Ping(ctx, client); err != nil {
			logger.Warn("report cache disabled", zap.String("redis_addr", cfg.RedisAddr), zap.Error(err))
		} else {
			revenueOptions = append(revenueOptions, revenue.WithReportCache(reportcache.NewRedisCache(client), cfg.ReportCacheTTL))
			reportCacheEnabled = true
		}
	}
	revenueAggregator, err := revenue.NewAggregator(store, clock, location, revenueOptions...)
	if err != nil {
		return fmt.Errorf("revenue aggregator init: %w", err)
	}

	router, err := httpapi.NewRouter(httpapi.Dependencies{
		Ledger:    ledger,
		Registrar: registrar,
		Orders:    orders,
		Revenue:   revenueAggregator,
		Logger:    logger,
	}, httpapi.Options{
		AllowedOrigins:    cfg.AllowedOrigins,
		RequestTimeout:    cfg.RequestTimeout,
		RegistrationRPS:   cfg.RegistrationRPS,
		RegistrationBurst: cfg.RegistrationBurst,
	})
	if err != nil {
		return err
	}
	logger.Info("guestledger starting",
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("timezone", location.String()),
		zap.Bool("report_cache", reportCacheEnabled),
	)
	return httpapi.Serve(ctx, cfg.ListenAddr, router, logger)
}
