// Command engramad is the multi-tenant memory middleware service.
//
// It exposes the memory and channel-management HTTP surface over a
// Postgres metadata store and a Qdrant vector index, gated by a
// sliding-window rate limiter and an admission pipeline that resolves
// either an admin token (channel management) or a bearer API key
// (memory operations).
//
// Configuration is loaded from an optional YAML file plus environment
// variables; see internal/config for the full set of knobs.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/engrama/internal/admission"
	"github.com/fyrsmithlabs/engrama/internal/channel"
	"github.com/fyrsmithlabs/engrama/internal/config"
	"github.com/fyrsmithlabs/engrama/internal/embeddings"
	"github.com/fyrsmithlabs/engrama/internal/httpapi"
	"github.com/fyrsmithlabs/engrama/internal/logging"
	"github.com/fyrsmithlabs/engrama/internal/memory"
	"github.com/fyrsmithlabs/engrama/internal/metadatastore"
	"github.com/fyrsmithlabs/engrama/internal/qdrant"
	"github.com/fyrsmithlabs/engrama/internal/ratelimit"
	"github.com/fyrsmithlabs/engrama/internal/vectorstore"
	"github.com/fyrsmithlabs/engrama/pkg/server"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 && args[0] == "version" {
		fmt.Printf("engramad %s (%s)\n", version, gitCommit)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("engramad: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewLogger(logging.NewDefaultConfig())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting engramad", zap.Int("port", cfg.Server.Port))

	metaStore, err := metadatastore.Open(cfg.MetadataDB.URI.Value())
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer metaStore.Close()

	db, err := sql.Open("postgres", cfg.MetadataDB.URI.Value())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	if err := metadatastore.Migrate(db); err != nil {
		db.Close()
		return fmt.Errorf("migrate metadata store: %w", err)
	}
	db.Close()

	qdrantClient, err := newQdrantClient(cfg.VectorStore, logger)
	if err != nil {
		return fmt.Errorf("connect qdrant: %w", err)
	}
	defer qdrantClient.Close()

	vectorMetrics := vectorstore.NewMetrics(nil)
	vecStore := vectorstore.NewQdrantStore(qdrantClient, vectorstore.Config{
		CollectionName: cfg.VectorStore.CollectionName,
		VectorSize:     cfg.VectorStore.VectorSize,
	}, logger, vectorMetrics)

	if err := vecStore.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure qdrant collection: %w", err)
	}

	embedMetrics := embeddings.NewMetrics(nil)
	encoder, err := embeddings.NewService(embeddings.Config{
		Endpoint: cfg.Embedding.Endpoint,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey.Value(),
	}, embedMetrics)
	if err != nil {
		return fmt.Errorf("init embedding service: %w", err)
	}

	limiter := buildLimiter(cfg.RateLimit, logger)

	engine := memory.New(metaStore, vecStore, encoder, logger)
	chMgr := channel.NewManager(metaStore, vecStore, logger)
	pipeline := admission.New(limiter, metaStore, cfg.Admin.Token, cfg.RateLimit.PerMinute, logger)

	router := httpapi.New(engine, chMgr, cfg.Limits, logger, metaStoreHealth{metaStore}, vecStore, encoderHealth{encoder})

	srv := server.NewServer(cfg)
	router.Register(srv.Echo(), pipeline)

	logger.Info(ctx, "engramad ready", zap.String("addr", fmt.Sprintf(":%d", cfg.Server.Port)))

	if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func newQdrantClient(cfg config.VectorStoreConfig, logger *logging.Logger) (*qdrant.GRPCClient, error) {
	host, portStr, err := net.SplitHostPort(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse vector_store.endpoint: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parse vector_store.endpoint port: %w", err)
	}

	clientCfg := qdrant.DefaultClientConfig()
	clientCfg.Host = host
	clientCfg.Port = port
	clientCfg.UseTLS = cfg.UseTLS
	clientCfg.APIKey = cfg.APIKey.Value()

	return qdrant.NewGRPCClient(clientCfg, logger)
}

// buildLimiter wires the primary/fallback rate limiter pair per the
// sliding-window design: a reachable Redis is the distributed primary,
// an in-process counter is the fallback when Redis is unreachable or
// unconfigured. A zero PerMinute disables rate limiting entirely.
func buildLimiter(cfg config.RateLimitConfig, logger *logging.Logger) ratelimit.Limiter {
	fallback := ratelimit.NewMemoryLimiter(cfg.PerMinute)
	if !cfg.DistributedURI.IsSet() {
		return fallback
	}

	opts, err := goredis.ParseURL(cfg.DistributedURI.Value())
	if err != nil {
		logger.Warn(context.Background(), "invalid rate_limit.distributed_uri, using in-process limiter only", zap.Error(err))
		return fallback
	}

	primary := ratelimit.NewRedisLimiter(goredis.NewClient(opts), cfg.PerMinute)
	return ratelimit.NewFallbackLimiter(primary, fallback, func(err error) {
		logger.Warn(context.Background(), "rate limiter falling back to in-process counter", zap.Error(err))
	})
}

// metaStoreHealth adapts metadatastore.Store to httpapi.HealthChecker
// without widening the Store interface with a liveness-probe method it
// otherwise has no use for.
type metaStoreHealth struct {
	store metadatastore.Store
}

func (h metaStoreHealth) Health(ctx context.Context) error {
	_, err := h.store.ListTenants(ctx)
	return err
}

type encoderHealth struct {
	encoder embeddings.Encoder
}

func (h encoderHealth) Health(ctx context.Context) error {
	_, err := h.encoder.Encode(ctx, "healthcheck")
	return err
}
