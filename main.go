package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/notes-bin/promptgallery/internal/api"
	"github.com/notes-bin/promptgallery/internal/auth"
	"github.com/notes-bin/promptgallery/internal/cache"
	"github.com/notes-bin/promptgallery/internal/config"
	"github.com/notes-bin/promptgallery/internal/generator"
	"github.com/notes-bin/promptgallery/internal/redis"
	"github.com/notes-bin/promptgallery/internal/service"
	_ "github.com/notes-bin/promptgallery/migrations"
)

func main() {
	// 初始化日志
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	defaultConfig := os.Getenv("CONFIG_FILE")
	if defaultConfig == "" {
		defaultConfig = "config/config.json"
	}
	configPath := flag.String("config", defaultConfig, "path to the JSON config file")
	flag.Parse()

	// 加载配置文件
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())

	if flag.Arg(0) == "migrate" {
		if err := migrate(cfg); err != nil {
			slog.Error("Migration failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Migrations applied")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, db, err := openRepositories(cfg)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	// 初始化 Redis
	redisClient, err := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	blobs, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	gen, err := generator.New(ctx, cfg.Generator)
	if err != nil {
		slog.Error("Failed to initialize image generator", "error", err)
		os.Exit(1)
	}

	publisher := openPublisher(cfg)
	defer publisher.Close()

	if err := cache.StartPopularRefresh(ctx, redisClient, repos.Images, cfg.PopularRefresh); err != nil {
		slog.Error("Failed to schedule popular refresh", "error", err)
		os.Exit(1)
	}

	authService := auth.NewAuth(cfg.JWTSecret, repos.Users, redisClient, cfg.SessionTTL.Std())
	imageService := service.NewImageService(service.ImageServiceOptions{
		Images:         repos.Images,
		Generator:      gen,
		Blobs:          blobs,
		Publisher:      publisher,
		Views:          redisClient,
		AllowAnonymous: cfg.AllowAnonymousPrompts,
	})
	profileService := service.NewProfileService(repos, blobs, cfg.MaxUploadSize)

	checks := map[string]api.HealthCheck{
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	if db != nil {
		checks["database"] = db.PingContext
	}

	// 设置路由
	h := api.NewHandler(cfg, authService, imageService, profileService, checks)
	router := api.SetupRouter(cfg, h)

	// 启动服务器
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Server starting on port", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 优雅关闭
	<-ctx.Done()
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
