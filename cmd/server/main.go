// Command server is the AIP auction core's process entry point: it loads
// the two external configuration documents (§6), selects the ledger and
// fanout backends they name, wires the registry/classifier/runner/FSM/
// weave stack, and serves the HTTP surface (§6) with graceful shutdown —
// the same overall shape as the reference corpus's cmd/main.go, adapted
// from a fixed Redis-backed auction engine to a pluggable-backend core
// driven entirely by typed configuration.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/rivalapexmediation/auction/internal/analytics"
	"github.com/rivalapexmediation/auction/internal/api"
	"github.com/rivalapexmediation/auction/internal/auctionrunner"
	"github.com/rivalapexmediation/auction/internal/classify"
	"github.com/rivalapexmediation/auction/internal/config"
	"github.com/rivalapexmediation/auction/internal/fanout"
	"github.com/rivalapexmediation/auction/internal/ledgerfsm"
	"github.com/rivalapexmediation/auction/internal/ledgerstore"
	"github.com/rivalapexmediation/auction/internal/observability"
	"github.com/rivalapexmediation/auction/internal/registry"
	"github.com/rivalapexmediation/auction/internal/security"
	"github.com/rivalapexmediation/auction/internal/weave"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(log.InfoLevel)

	srvCfg, err := config.LoadServerFile(config.ConfigPath())
	if err != nil {
		log.WithError(err).Fatal("server: failed to load server configuration")
	}
	config.ApplyEnvOverrides(srvCfg)

	bidderCfgs, err := config.LoadBiddersFile(config.BiddersPath())
	if err != nil {
		log.WithError(err).Fatal("server: failed to load bidder roster")
	}

	store, closeStore, err := buildLedgerStore(srvCfg.Ledger)
	if err != nil {
		log.WithError(err).Fatal("server: failed to initialize ledger store")
	}
	defer closeStore()

	pub, closePub := buildFanout(srvCfg.Fanout)
	defer closePub()

	reg, err := buildRegistry(bidderCfgs)
	if err != nil {
		log.WithError(err).Fatal("server: failed to build bidder registry")
	}
	platforms, err := buildPlatforms(srvCfg.Platforms)
	if err != nil {
		log.WithError(err).Fatal("server: failed to build platform registry")
	}
	health := registry.NewHealth(5, 30*time.Second)
	classifier := classify.New(classify.KeywordRules(srvCfg.Classifier.Pools))

	metrics := observability.NewRolling(512)

	var exporter ledgerfsm.Exporter
	if srvCfg.Analytics.Enabled && srvCfg.Analytics.ClickhouseAddr != "" {
		sink, err := analytics.NewSink(srvCfg.Analytics.ClickhouseAddr)
		if err != nil {
			log.WithError(err).Warn("server: analytics sink unavailable, continuing without export")
		} else {
			exporter = sink
			defer sink.Close()
		}
	}
	fsm := ledgerfsm.New(store, exporter)

	runner := auctionrunner.New(pub, fsm).WithMetrics(metrics)
	nonces := security.NewNonceStore(store, time.Duration(srvCfg.Transport.NonceTTLSeconds)*time.Second)

	recCore := &recommendationCore{classifier: classifier, registry: reg, health: health, runner: runner}
	weaveCoord := weave.New(
		store, recCore, 4,
		time.Duration(srvCfg.Recommendation.WindowMS)*time.Millisecond,
		time.Duration(srvCfg.Recommendation.RetryAfterMS)*time.Millisecond,
	)

	handlers := api.NewHandlers(
		reg, platforms, health, classifier, runner, fsm, nonces, weaveCoord,
		time.Duration(srvCfg.Transport.MaxClockSkewMS)*time.Millisecond,
	)

	router := api.NewRouter(handlers)
	router.Use(corsMiddleware)

	adminMetrics := router.PathPrefix("/v1/metrics").Subrouter()
	adminMetrics.Use(api.AdminIPAllowlistMiddleware)
	adminMetrics.Use(api.AdminAuthMiddleware)
	adminMetrics.Use(api.AdminRateLimitMiddleware)
	adminMetrics.HandleFunc("", observability.Handler(metrics)).Methods("GET")

	srv := &http.Server{
		Addr:         srvCfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("server: starting auction core")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server: listen failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("server: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server: forced shutdown")
	}
	log.Info("server: exited")
}

// buildLedgerStore selects the ledger backend named by cfg.Backend (§4.3),
// returning a cleanup func that's always safe to call.
func buildLedgerStore(cfg config.LedgerConfig) (ledgerstore.Store, func(), error) {
	switch cfg.Backend {
	case config.LedgerRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, func() {}, err
		}
		return ledgerstore.NewRedis(client), func() { _ = client.Close() }, nil
	case config.LedgerPostgres:
		store, err := ledgerstore.NewPostgres(context.Background(), cfg.PostgresDSN)
		if err != nil {
			return nil, func() {}, err
		}
		return store, func() {}, nil
	case config.LedgerFirestore:
		return ledgerstore.NewFirestore(), func() {}, nil
	default:
		return ledgerstore.NewMemory(), func() {}, nil
	}
}

// buildFanout selects the fanout backend named by cfg.Backend (§4.5).
func buildFanout(cfg config.FanoutConfig) (fanout.Publisher, func()) {
	if cfg.Backend == config.FanoutPubsub {
		addr := os.Getenv(config.EnvRedisAddr)
		if addr == "" {
			addr = "localhost:6379"
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		return fanout.NewRedisPubSub(client, cfg.TopicPrefix), func() { _ = client.Close() }
	}
	return fanout.NewLocal(), func() {}
}

func buildRegistry(cfgs []config.BidderConfig) (*registry.Registry, error) {
	bidders := make([]*registry.Bidder, 0, len(cfgs))
	for _, c := range cfgs {
		pub, err := registry.ParsePublicKeyPEM(c.PublicKeyPEM)
		if err != nil {
			return nil, err
		}
		pools := make(map[string]struct{}, len(c.Pools))
		for _, p := range c.Pools {
			pools[p] = struct{}{}
		}
		bidders = append(bidders, &registry.Bidder{
			Name:      c.Name,
			Endpoint:  c.Endpoint,
			PublicKey: pub,
			Timeout:   time.Duration(c.TimeoutMS) * time.Millisecond,
			Pools:     pools,
		})
	}
	return registry.New(bidders)
}

func buildPlatforms(cfgs []config.PlatformConfig) (*registry.Platforms, error) {
	keys := make([]registry.PlatformKey, 0, len(cfgs))
	for _, c := range cfgs {
		pub, err := registry.ParsePublicKeyPEM(c.PublicKeyPEM)
		if err != nil {
			return nil, err
		}
		keys = append(keys, registry.PlatformKey{PlatformID: c.PlatformID, PublicKey: pub})
	}
	return registry.NewPlatforms(keys)
}

// corsMiddleware allows bidder/platform integrations running in a browser
// context to call the auction surface directly, matching the reference
// corpus's own permissive-by-default CORS wrapper.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := getEnv("CORS_ORIGIN", "*")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// recommendationCore implements weave.AuctionCore by driving the same
// auction runner the platform-facing /aip/context endpoint uses, over a
// synthetic ContextRequest built from the recommendation request (§4.8).
type recommendationCore struct {
	classifier *classify.Classifier
	registry   *registry.Registry
	health     *registry.Health
	runner     *auctionrunner.Runner
}

func (c *recommendationCore) OpenRecommendationAuction(ctx context.Context, req weave.Request, window time.Duration) (auctionrunner.Result, error) {
	pools := c.classifier.Classify(req.Query, nil)
	targets := make(map[string]struct{})
	for _, b := range c.registry.LookupByPools(pools) {
		if c.health == nil || c.health.Allow(b.Name) {
			targets[b.Name] = struct{}{}
		}
	}

	auctionID := "weave:" + req.SessionID + ":" + req.MessageID
	result, err := c.runner.Open(ctx, auctionrunner.OpenRequest{
		AuctionID:     auctionID,
		TargetPools:   pools,
		TargetBidders: targets,
		Window:        window,
		ContextReq:    req,
	})
	if err == nil && c.health != nil {
		winner := ""
		if result.Winner != nil {
			winner = result.Winner.Bidder
			c.health.RecordWin(winner)
		}
		for name := range targets {
			if name != winner {
				c.health.RecordMiss(name)
			}
		}
	}
	return result, err
}
