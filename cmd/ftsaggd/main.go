// Command ftsaggd is the aggregation pipeline's coordinator/shard
// listener: it dials the storage backends, wires internal/engine's
// processor assembler to them, and exposes the SEARCH/AGGREGATE/HYBRID/
// CURSOR command surface over HTTP. Grounded on cmd/agentd/main.go's
// startup sequence (dotenv, logger, config, OTel with graceful degrade,
// a plain http.ServeMux with health endpoints).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"aggsearch/internal/config"
	"aggsearch/internal/cursor"
	"aggsearch/internal/engine"
	"aggsearch/internal/kvstore"
	"aggsearch/internal/logging"
	"aggsearch/internal/obs"
	"aggsearch/internal/qdrantidx"
	"aggsearch/internal/schema"
	"aggsearch/internal/telemetry"
	"aggsearch/internal/version"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	var cfg config.Config
	if path := os.Getenv("AGGSEARCH_CONFIG"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
		config.ApplyEnv(&cfg)
	} else {
		loaded, err := config.Load()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logging.Init("", cfg.LogLevel)
	log.Info().Str("version", version.Version).Msg("ftsaggd starting")

	var shutdown func(context.Context) error
	if cfg.OTel.Enabled {
		shutdown = obs.Init(nil, nil)
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	ctx := context.Background()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis ping failed")
	}
	defer redisClient.Close()

	store := kvstore.NewRedisDocStore(redisClient)
	resolver := engine.NewRedisIndexResolver(redisClient)

	var catalog schema.Catalog
	if cfg.Postgres.DSN != "" {
		pool, err := schema.OpenPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres dial failed")
		}
		defer pool.Close()
		pg := schema.NewPGCatalog(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres schema init failed")
		}
		catalog = pg
	} else {
		log.Warn().Msg("no postgres dsn configured, using in-memory schema catalog")
		catalog = schema.NewMemCatalog()
	}

	var vecIndex kvstore.VectorIndex
	if cfg.Qdrant.Host != "" {
		qc, err := qdrant.NewClient(&qdrant.Config{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.UseTLS,
		})
		if err != nil {
			log.Warn().Err(err).Msg("qdrant dial failed, HYBRID VSIM branches will error")
		} else {
			vecIndex = qdrantidx.New(qc, "aggsearch")
		}
	}

	cursors := cursor.New()
	cursors.StartReaper(
		time.Duration(cfg.Cursor.DefaultMaxIdleMS)*time.Millisecond,
		250*time.Millisecond,
		30*time.Second,
	)
	defer cursors.Stop()

	sink, err := telemetry.Open(ctx, telemetry.Config{
		DSN:            cfg.ClickHouse.DSN,
		Database:       cfg.ClickHouse.Database,
		Table:          cfg.ClickHouse.Table,
		TimeoutSeconds: cfg.ClickHouse.TimeoutSeconds,
	})
	if err != nil {
		log.Warn().Err(err).Msg("telemetry sink unavailable, continuing without it")
		sink = nil
	}

	srv := &server{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		catalog:  catalog,
		vecIndex: vecIndex,
		cursors:  cursors,
		sink:     sink,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ready")
	})
	mux.HandleFunc("/cmd/search", srv.handleSearch)
	mux.HandleFunc("/cmd/aggregate", srv.handleAggregate)
	mux.HandleFunc("/cmd/hybrid", srv.handleHybrid)
	mux.HandleFunc("/cmd/cursor", srv.handleCursor)
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, version.Version)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("ftsaggd listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
