package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"AmoraGateway/config"
	"AmoraGateway/logger"
	"AmoraGateway/service/gateway"
	"AmoraGateway/service/limiter"
	"AmoraGateway/service/match"
	"AmoraGateway/service/natsx"
	"AmoraGateway/service/presence"
	"AmoraGateway/service/registry"
	"AmoraGateway/service/storage"
)

func main() {
	confPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	path := *confPath
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	conf, err := config.Load(path)
	if err != nil {
		logger.L().Fatal("load config", zap.Error(err))
	}
	log := logger.L()
	log.Info("starting gateway",
		zap.String("profile", string(conf.Profile)),
		zap.String("addr", conf.Server.Addr))

	reg := registry.New[*gateway.Conn]()
	admission := limiter.NewAdmission(limiter.AdmissionConf{
		Window: conf.Admission.Window,
		Cap:    conf.Admission.Cap,
	})
	limits := limiter.NewEventLimiter(limiter.EventConf{
		Default: limiter.EventCap{
			Window:       conf.RateLimit.Window,
			MaxEvents:    conf.RateLimit.MaxEvents,
			MaxMegabytes: conf.RateLimit.MaxMegabytes,
		},
		PerEvent:   perEventCaps(conf),
		SweepEvery: conf.RateLimit.SweepEvery,
		IdleAfter:  conf.RateLimit.IdleAfter,
	})
	defer limits.Close()

	srv := gateway.NewServer(conf, reg, admission, limits, log)

	ctx := context.Background()
	matches := buildMatchLookup(ctx, conf, log)
	srv.SetAnnouncer(presence.NewBroadcaster(
		matches, reg, srv, buildSink(conf, log),
		presence.BroadcasterConf{RecipientTimeout: conf.Presence.RecipientTimeout},
		log))

	if mirror := buildMirror(ctx, conf, log); mirror != nil {
		srv.SetMirror(mirror)
		defer mirror.Close()
	}

	if conf.Profile == config.ProfileProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", srv.HandleWS)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/onlinez", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"online": srv.OnlineCount()})
	})

	httpSrv := &http.Server{Addr: conf.Server.Addr, Handler: r}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
}

func perEventCaps(conf *config.Config) map[string]limiter.EventCap {
	if len(conf.RateLimit.PerEvent) == 0 {
		return nil
	}
	caps := make(map[string]limiter.EventCap, len(conf.RateLimit.PerEvent))
	for event, c := range conf.RateLimit.PerEvent {
		caps[event] = limiter.EventCap{
			Window:       c.Window,
			MaxEvents:    c.MaxEvents,
			MaxMegabytes: c.MaxMegabytes,
		}
	}
	return caps
}

// buildMatchLookup connects the match store. Development runs without
// Mongo on a static pair list so the gateway can be exercised alone.
func buildMatchLookup(ctx context.Context, conf *config.Config, log *zap.Logger) match.Lookup {
	if conf.Profile == config.ProfileDevelopment && os.Getenv("MONGO_URI") == "" {
		log.Warn("development profile: using static match list")
		return match.NewStatic()
	}
	store, err := match.NewMongoStore(ctx, conf.Mongo.URI, conf.Mongo.Database)
	if err != nil {
		log.Fatal("connect match store", zap.Error(err))
	}
	return store
}

// buildMirror connects the Redis presence mirror. Optional in
// development; required infrastructure in production.
func buildMirror(ctx context.Context, conf *config.Config, log *zap.Logger) *storage.PresenceMirror {
	mirror, err := storage.NewPresenceMirror(ctx, storage.PresenceMirrorConf{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
		TTL:      conf.Presence.MirrorTTL,
	})
	if err != nil {
		if conf.Profile == config.ProfileDevelopment {
			log.Warn("presence mirror unavailable, continuing without it", zap.Error(err))
			return nil
		}
		log.Fatal("connect presence mirror", zap.Error(err))
	}
	return mirror
}

// buildSink connects the NATS transition publisher, optional in
// development.
func buildSink(conf *config.Config, log *zap.Logger) presence.TransitionSink {
	pub, err := natsx.NewPublisher(natsx.PublisherConf{
		URL:           conf.Nats.URL,
		SubjectPrefix: conf.Nats.SubjectPrefix,
	})
	if err != nil {
		if conf.Profile == config.ProfileDevelopment {
			log.Warn("transition sink unavailable, continuing without it", zap.Error(err))
			return nil
		}
		log.Fatal("connect transition sink", zap.Error(err))
	}
	return pub
}
