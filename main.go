package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/traffic-sign/internal/auth"
	"github.com/example/traffic-sign/internal/classifier"
	"github.com/example/traffic-sign/internal/config"
	"github.com/example/traffic-sign/internal/handlers"
	"github.com/example/traffic-sign/internal/imageprocessor"
	"github.com/example/traffic-sign/internal/labels"
	"github.com/example/traffic-sign/internal/logging"
	"github.com/example/traffic-sign/internal/metrics"
	"github.com/example/traffic-sign/internal/rpc"
	"github.com/example/traffic-sign/internal/session"
	"github.com/example/traffic-sign/internal/ui"
	"github.com/example/traffic-sign/internal/usecase"
)

func main() {
	cfg := config.MustLoad(getEnv("CONFIG_PATH", ""))

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	m := metrics.New()
	samplerCtx, stopSampler := context.WithCancel(context.Background())
	defer stopSampler()
	go m.RunProcessSampler(samplerCtx, cfg.Metrics.ProcessSampleInterval, logger)

	router, loader, err := buildApp(ctx, cfg, m, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer loader.Close() //nolint:errcheck

	if cfg.GRPC.ListenAddr != "" {
		c, err := loader.Get(ctx)
		if err != nil {
			logger.Fatal("failed to load classifier for grpc", zap.Error(err))
		}
		grpcServer := rpc.NewGRPCServer(c, logger)
		defer grpcServer.GracefulStop()
		go serveGRPC(grpcServer, cfg.GRPC.ListenAddr, logger)
	}

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	logger.Info("traffic sign classifier listening",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("classifier", cfg.Classifier.Kind))
	if err := serveHTTPServer(server, cfg.HTTP.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildApp wires the pipeline and HTTP routes. The classifier is loaded and
// checked against the normalizer and label set before it returns.
func buildApp(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*gin.Engine, *classifier.Loader, error) {
	store, err := initSessionStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	set, err := loadLabels(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("load label set: %w", err)
	}

	loader := classifier.NewLoader(func(ctx context.Context) (classifier.Classifier, error) {
		return classifier.Open(ctx, cfg.ClassifierOptions(set.Len()), logger)
	}, logger)

	classify := usecase.NewClassificationUseCase(loader, set, usecase.PipelineConfig{
		TargetSize:  imageprocessor.Size{Width: cfg.Pipeline.TargetWidth, Height: cfg.Pipeline.TargetHeight},
		Threshold:   cfg.Threshold(),
		MaxPixels:   cfg.Pipeline.MaxPixels,
		PipelineTTL: cfg.Session.PipelineTTL,
	}, store, m, logger)
	if err := classify.SelfCheck(ctx); err != nil {
		loader.Close() //nolint:errcheck
		return nil, nil, fmt.Errorf("pipeline self check: %w", err)
	}

	page, err := ui.NewPage(set.Name(), set.Len(), cfg.Threshold())
	if err != nil {
		loader.Close() //nolint:errcheck
		return nil, nil, err
	}

	manager, err := auth.NewManager(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		loader.Close() //nolint:errcheck
		return nil, nil, fmt.Errorf("session manager: %w", err)
	}

	r := gin.Default()
	r.MaxMultipartMemory = cfg.HTTP.MaxUploadBytes

	handlers.RegisterRoutes(r, handlers.Deps{
		Classify:       classify,
		Preferences:    usecase.NewPreferencesUseCase(store, logger),
		Page:           page,
		Session:        auth.SessionMiddleware(manager, cfg.Session.CookieName, cfg.Session.SecureCookie),
		Metrics:        m.Handler(),
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		Logger:         logger,
	})
	return r, loader, nil
}

func loadLabels(cfg *config.Config) (*labels.Set, error) {
	if cfg.Pipeline.LabelsFile != "" {
		return labels.LoadFile(cfg.Pipeline.LabelsFile)
	}
	return labels.Preset(cfg.Pipeline.LabelsPreset)
}

func initSessionStore(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (session.Store, error) {
	if cfg.Redis.Addr == "" {
		zapLogger.Info("no redis configured, keeping sessions in memory")
		return session.NewMemoryStore(cfg.Session.TTL), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := session.NewRedisStore(client, cfg.Session.TTL)

	redisCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(redisCtx); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return store, nil
}

func serveGRPC(server *grpc.Server, addr string, logger *zap.Logger) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("grpc listen failed", zap.String("addr", addr), zap.Error(err))
	}
	logger.Info("grpc scorer listening", zap.String("addr", addr))
	if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("grpc server stopped", zap.Error(err))
	}
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
