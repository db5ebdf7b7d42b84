package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/makerbot/gomaker/internal/dashboard"
	"github.com/makerbot/gomaker/internal/events"
	"github.com/makerbot/gomaker/internal/maker"
	"github.com/makerbot/gomaker/internal/notify"
	"github.com/makerbot/gomaker/internal/risk"
	"github.com/makerbot/gomaker/pkg/config"
	"github.com/makerbot/gomaker/pkg/logger"
	"github.com/makerbot/gomaker/pkg/persistence"
	"github.com/makerbot/gomaker/pkg/sdk/api"
	"github.com/makerbot/gomaker/pkg/sdk/websocket"
	"github.com/makerbot/gomaker/pkg/secretstore"
	"github.com/makerbot/gomaker/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "yml/config.yaml", "配置文件路径")
	dryRun := flag.Bool("dry-run", false, "纸交易模式，不发真实订单")
	flag.Parse()

	// .env 可选，缺失不报错
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logrus.Errorf("启动失败: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priv, err := loadSigningKey(cfg)
	if err != nil {
		return fmt.Errorf("加载签名私钥: %w", err)
	}
	signer, err := api.NewSigner(priv)
	if err != nil {
		return err
	}

	client := api.NewClient(cfg.Venue.RestURL, signer)
	if err := client.Login(ctx); err != nil {
		return fmt.Errorf("登录失败: %w", err)
	}
	logrus.Info("会话已建立")

	token, err := client.Token(ctx)
	if err != nil {
		return err
	}

	gateway := api.NewGateway(client, cfg.DryRun)
	if cfg.DryRun {
		logrus.Warn("dry-run 模式：不会发出真实订单")
	}

	feed := websocket.NewFeedClient(cfg.Venue.WsURL, token, &websocket.Config{
		BaseReconnectDelay:   time.Duration(cfg.Feed.BaseReconnectDelayMs) * time.Millisecond,
		MaxReconnectDelay:    time.Duration(cfg.Feed.MaxReconnectDelayMs) * time.Millisecond,
		MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
		PingInterval:         time.Duration(cfg.Feed.PingIntervalSeconds) * time.Second,
	})
	if err := feed.Start(); err != nil {
		return fmt.Errorf("行情流连接失败: %w", err)
	}

	makerCfg, err := maker.FromAppConfig(cfg)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	breaker := risk.NewCircuitBreaker(risk.CircuitBreakerConfig{
		MaxConsecutiveErrors: int64(cfg.Risk.MaxConsecutiveErrors),
	})

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	countersStore := persistence.NewJSONFileService(dataDir).
		NewStore("maker", makerCfg.Symbol, "counters")

	controller, err := maker.New(makerCfg, gateway, feed, bus, breaker, countersStore)
	if err != nil {
		return err
	}

	if cfg.Notify.WebhookURL != "" {
		ch, cancelSub := bus.Subscribe(64)
		notifier := notify.New(cfg.Notify.WebhookURL)
		go func() {
			defer cancelSub()
			notifier.Run(ctx, ch)
		}()
	}

	if err := controller.Start(ctx); err != nil {
		feed.Stop()
		return fmt.Errorf("控制环启动失败: %w", err)
	}

	sm := shutdown.NewManager()
	sm.OnShutdown(func(context.Context) {
		controller.Stop()
	})
	sm.OnShutdown(func(context.Context) {
		feed.Stop()
	})
	sm.OnShutdown(func(context.Context) {
		bus.Close()
	})

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)

	if cfg.Dashboard.Enabled {
		ch, cancelSub := bus.Subscribe(64)
		defer cancelSub()
		dash := dashboard.New(controller.GetState, ch)
		go func() {
			// 面板退出（q 键）会补发 SIGINT，走统一退出链路
			_ = dash.Run(ctx)
		}()
	}

	sig := <-sigC
	logrus.Infof("收到信号 %s，开始优雅退出", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	sm.Shutdown(shutdownCtx)
	return nil
}

// loadSigningKey 优先从 secret store 读取签名私钥，其次用配置里的
// signing_key 字段（支持环境变量展开）。
func loadSigningKey(cfg *config.Config) (ed25519.PrivateKey, error) {
	if cfg.Auth.SecretStorePath != "" {
		var encKey []byte
		if cfg.Auth.SecretStoreEncKeyEnv != "" {
			parsed, err := secretstore.ParseKey(os.Getenv(cfg.Auth.SecretStoreEncKeyEnv))
			if err != nil {
				return nil, err
			}
			encKey = parsed
		}
		store, err := secretstore.Open(secretstore.OpenOptions{
			Path:          cfg.Auth.SecretStorePath,
			EncryptionKey: encKey,
			ReadOnly:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("打开 secret store: %w", err)
		}
		defer store.Close()

		priv, err := store.SigningKey()
		if err == nil {
			return priv, nil
		}
		logrus.Warnf("secret store 中没有签名私钥，回退到配置字段: %v", err)
	}

	if cfg.Auth.SigningKey == "" {
		return nil, fmt.Errorf("未配置签名私钥（signing_key 或 secret store）")
	}
	return secretstore.DecodeSigningKey(cfg.Auth.SigningKey)
}
