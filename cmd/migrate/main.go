package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/config"
	"tessera.dev/internal/migrate"
	"tessera.dev/internal/obs"
	"tessera.dev/internal/store/pg"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	var (
		dsn     = flag.String("dsn", cfg.Postgres.DSN, "PostgreSQL DSN (default TESSERA_PG_DSN)")
		table   = flag.String("table", "", "migrations bookkeeping table")
		timeout = flag.Duration("timeout", 60*time.Second, "overall timeout")
		role    = flag.String("grant-role", auth.DefaultPlatformRoleName, "role name used by grant")
	)
	flag.Parse()

	logger, err := obs.NewLogger(cfg.LogLevel, cfg.LogFormat, "tessera-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *dsn == "" {
		logger.Fatal("missing DSN: provide via -dsn or TESSERA_PG_DSN")
	}
	if flag.NArg() == 0 {
		logger.Fatal("usage: migrate [up|down|status|seed|grant <tenant-slug> <email> <permission>...]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(ctx, pg.PoolConfig{
		DSN:           *dsn,
		MaxConns:      2,
		RetryAttempts: cfg.Postgres.RetryAttempts,
		RetryInterval: cfg.Postgres.RetryInterval,
	})
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), migrate.WithLogger(logger), migrate.WithMigrationsTable(*table))

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var statuses []migrate.MigrationStatus
		statuses, err = mgr.Status(ctx)
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Printf("%05d  %-8s %s\n", s.Version, state, s.Name)
		}
	case "seed":
		var catalog *auth.CatalogService
		catalog, err = auth.NewCatalogService(store)
		if err == nil {
			err = catalog.EnsureBuiltins(ctx)
		}
		if err == nil {
			logger.Info("catalog seeded", zap.Int("claims", len(auth.BuiltinClaims)))
		}
	case "grant":
		if flag.NArg() < 4 {
			logger.Fatal("usage: migrate grant <tenant-slug> <email> <permission>...")
		}
		var granted auth.Role
		granted, err = auth.NewRoleService(store).GrantPlatformRole(ctx, auth.PlatformGrant{
			TenantSlug:  flag.Arg(1),
			Email:       flag.Arg(2),
			RoleName:    *role,
			Permissions: flag.Args()[3:],
		})
		if err == nil {
			logger.Info("platform role granted",
				zap.String("tenant_slug", flag.Arg(1)),
				zap.String("email", flag.Arg(2)),
				zap.String("role_id", granted.ID),
				zap.Strings("permissions", flag.Args()[3:]),
			)
		}
	default:
		logger.Fatal("unknown command", zap.String("command", cmd))
	}
	if err != nil {
		logger.Fatal("migrate failed", zap.String("command", cmd), zap.Error(err))
	}
}
