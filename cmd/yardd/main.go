package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/xela07ax/yardwatch/internal/alerts"
	"github.com/xela07ax/yardwatch/internal/detector"
	"github.com/xela07ax/yardwatch/internal/domain"
	"github.com/xela07ax/yardwatch/internal/engine"
	"github.com/xela07ax/yardwatch/internal/infra"
	"github.com/xela07ax/yardwatch/internal/tracking"
	"github.com/xela07ax/yardwatch/internal/transport/grpcstream"
	"github.com/xela07ax/yardwatch/internal/transport/ws"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Контекст жизни процесса: SIGINT/SIGTERM отменяют все фоновые циклы
	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 2. Хранилище (опционально)
	db, err := openStore(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}

	// 3. Redis (опционально)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(appCtx).Err(); err != nil {
			logger.Fatal("redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}

	// 4. Ручные статусы: БД -> Redis -> L1, дальше живем по сигналам
	var provider engine.OverrideProvider
	if db != nil {
		provider = db
	}
	overrides := engine.NewOverrideManager(rdb, provider, logger)
	if err := overrides.Init(appCtx); err != nil {
		logger.Fatal("failed to init overrides", zap.Error(err))
	}
	go overrides.StartListener(appCtx)

	// 5. Архив алертов поверх CB + retry
	sinks := []tracking.AlertSink{metrics}
	var archive *alerts.Archive
	if db != nil {
		reliable := alerts.NewReliableStorage(db, reliabilityConfig(cfg.Archive), func(name string, from, to gobreaker.State) {
			logger.Warn("archive circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		})
		archive = alerts.NewArchive(cfg.Archive.ArchiveConfig, reliable, metrics.ArchiveBufferFill, logger)
		archive.Start()
		sinks = append(sinks, archive)
	}

	// 6. Ядро: источник -> процессор -> SnapshotStore -> Broadcaster
	source, err := detector.Open(appCtx, cfg.Detector.Config, logger)
	if err != nil {
		logger.Fatal("failed to open detector source", zap.String("kind", cfg.Detector.Kind), zap.Error(err))
	}

	proc := tracking.NewFrameProcessor(processorConfig(cfg.Tracking), overrides, logger, sinks...)
	snapshots := engine.NewSnapshotStore()
	if cfg.Broadcast.PublishInitial {
		snapshots.Store(domain.EmptySnapshot(cfg.Tracking.Zones))
	}

	pipeline := engine.NewPipeline(engine.PipelineConfig{
		OnExhausted: cfg.Detector.OnExhausted,
		Rewind:      engine.RewindConfig{
			Attempts: cfg.Detector.RewindAttempts,
			Delay:    cfg.Detector.RewindDelay,
			MaxDelay: cfg.Detector.RewindMaxDelay,
		},
	}, source, proc, snapshots, metrics, logger)

	bcast := engine.NewBroadcaster(engine.BroadcasterConfig{RateHz: cfg.Broadcast.RateHz}, snapshots, metrics, logger)

	// 7. Транспорты
	hub := ws.NewHub(ws.Config{
		WriteTimeout: cfg.Transport.WriteTimeout,
		QueueSize:    cfg.Transport.QueueSize,
		MaxDropped:   cfg.Broadcast.MaxDropped,
		CommandRate:  cfg.Transport.CommandRate,
		CommandBurst: cfg.Transport.CommandBurst,
		ReadLimit:    cfg.Transport.ReadLimit,
		PingInterval: cfg.Transport.PingInterval,
	}, bcast, overrides, metrics, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           newRouter(cfg, reg, hub, snapshots, overrides, logger),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	var grpcSrv *grpc.Server
	if cfg.GRPC.Enabled {
		grpcSrv = grpc.NewServer(
			grpc.ChainUnaryInterceptor(grpcstream.UnaryLogInterceptor(logger)),
			grpc.ChainStreamInterceptor(grpcstream.StreamLogInterceptor(logger)),
		)
		grpcstream.RegisterSnapshotStreamServer(grpcSrv, grpcstream.NewServer(grpcstream.Config{
			QueueSize:  cfg.Transport.QueueSize,
			MaxDropped: cfg.Broadcast.MaxDropped,
		}, bcast, overrides, metrics, logger))
	}

	// 8. Запуск
	g, ctx := errgroup.WithContext(appCtx)

	g.Go(func() error {
		// упавший источник не роняет рассылку: последний снимок просто замирает
		if err := pipeline.Run(ctx); err != nil {
			logger.Error("detection loop stopped", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error { return bcast.Run(ctx) })

	g.Go(func() error {
		logger.Info("yardd HTTP started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if grpcSrv != nil {
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				return err
			}
			logger.Info("yardd gRPC started", zap.String("addr", cfg.GRPC.Addr))
			return grpcSrv.Serve(lis)
		})
	}

	// 9. Graceful Shutdown: сначала входящие, потом циклы, потом ресурсы
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("yardd stopping...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown failed", zap.Error(err))
		}
		bcast.Shutdown()
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("yardd terminated with error", zap.Error(err))
	}

	if err := source.Close(); err != nil {
		logger.Warn("detector source close failed", zap.Error(err))
	}
	if archive != nil {
		archive.Stop()
	}
	if db != nil {
		db.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	logger.Info("yardd exited properly")
}

func newRouter(cfg *infra.Config, reg *prometheus.Registry, hub *ws.Hub, snapshots *engine.SnapshotStore, overrides *engine.OverrideManager, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(engine.AccessLog(logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/ws", hub)

	r.Get("/v1/snapshot", func(w http.ResponseWriter, r *http.Request) {
		snap, seq, ok := snapshots.Load()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Snapshot-Seq", formatSeq(seq))
		_ = json.NewEncoder(w).Encode(snap)
	})
	r.Get("/v1/overrides", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(overrides.List())
	})

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	return r
}
