package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storegateway/internal/auth"
	"storegateway/internal/config"
	"storegateway/internal/db"
	clog "storegateway/internal/log"
	"storegateway/internal/mw"
	"storegateway/internal/server"
	"storegateway/internal/service"
	"storegateway/internal/storage"
	"storegateway/internal/ws"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库与 Redis，并启动网关。
	cfg := config.Load()
	clog.Init(cfg.Env, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	// 在线状态只属于当前进程，上次退出时残留的标记全部清掉。
	if err := db.ResetOnlineFlags(gdb); err != nil {
		log.Warn().Err(err).Msg("reset online flags")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users := service.NewUserService(gdb)
	rooms := service.NewRoomService(gdb)
	messages := service.NewMessageService(gdb, users)

	sinks := []ws.StatusSink{users}
	var mirror *storage.RedisPresence
	if cfg.RedisAddr != "" {
		mirror, err = storage.NewRedisPresence(
			storage.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
			time.Duration(cfg.PresenceTTLSeconds)*time.Second,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect")
		}
		defer mirror.Close()
		sinks = append(sinks, mirror)
	}
	presence := ws.NewPresence(sinks...)
	if mirror != nil {
		go mirror.KeepAlive(ctx, presence.OnlineUserIDs)
	}

	verifier := auth.NewVerifier(cfg.JWTSecret, users)
	hub := ws.NewHub(verifier, presence, ws.Stores{
		Rooms:    rooms,
		Messages: messages,
		Orders:   service.NewOrderService(gdb),
		Products: service.NewProductService(gdb),
	}, ws.Options{
		LowStockThreshold: cfg.LowStockThreshold,
		MaxMessageLength:  cfg.MaxMessageLength,
		SendBuffer:        cfg.WSSendBuffer,
	})

	rl := mw.NewRateLimiter(rate.Every(time.Second/20), 40, 2*time.Minute)
	go rl.Run()
	defer rl.Stop()

	r := server.SetupRouter(cfg, hub, verifier, server.NewHandler(hub, messages, rooms), rl)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}
