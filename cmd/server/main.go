package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"crypto-wallet/internal/blockchain"
	"crypto-wallet/internal/config"
	apphttp "crypto-wallet/internal/http"
	"crypto-wallet/internal/jobs"
	"crypto-wallet/internal/keystore"
	"crypto-wallet/internal/mailer"
	"crypto-wallet/internal/repository/sqlite"
	"crypto-wallet/internal/service"
	"crypto-wallet/internal/token"
	"crypto-wallet/internal/wallet"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}
	if strings.TrimSpace(cfg.Keystore.EncryptionKey) == "" {
		logger.Fatalf("keystore encryption key is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	jobRepo := sqlite.NewJobRepository(db)

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := jobRepo.Init(ctx); err != nil {
		logger.Fatalf("init job repository: %v", err)
	}

	sender := buildMailer(cfg, logger)

	keys, err := buildKeystore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup keystore: %v", err)
	}

	walletGen := wallet.NewHDGenerator()
	codec := token.NewCodec([]byte(cfg.Auth.JWTSecret), time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)

	manager := jobs.NewManager(jobs.Config{
		Workers:       cfg.Jobs.Workers,
		VerifyURLBase: cfg.Jobs.VerifyURLBase,
		Logger:        logger,
	}, jobRepo, userRepo, walletGen, keys, sender)

	authService := service.NewAuthService(userRepo, codec, manager, sender, walletGen, logger)
	userService := service.NewUserService(userRepo, sender, logger)

	var chain *blockchain.Client
	if cfg.Eth.RPCURL != "" {
		chain, err = blockchain.Dial(ctx, cfg.Eth.RPCURL)
		if err != nil {
			logger.Fatalf("dial ethereum node: %v", err)
		}
	} else {
		logger.Warn("no ethereum rpc url configured, /sendTransaction disabled")
	}

	if err := manager.Start(ctx); err != nil {
		logger.Fatalf("start job manager: %v", err)
	}
	if err := manager.Resume(ctx); err != nil {
		logger.Warnf("resume jobs: %v", err)
	}

	if !cfg.Dev() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(
		authService,
		userService,
		chain,
		keys,
		time.Duration(cfg.Auth.CookieTTLHours)*time.Hour,
		cfg.Dev(),
		cfg.Server.RateLimitPerHour,
		logger,
	)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	manager.Shutdown()

	logger.Info("bye")
}

func buildMailer(cfg config.Config, logger *logrus.Logger) mailer.Sender {
	if cfg.SMTP.Host == "" {
		logger.Warn("no smtp host configured, mail will be logged only")
		return &mailer.LogSender{Logger: logger}
	}

	sender, err := mailer.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	if err != nil {
		logger.Fatalf("setup smtp sender: %v", err)
	}
	logger.Infof("sending mail through %s:%d", cfg.SMTP.Host, cfg.SMTP.Port)
	return sender
}

func buildKeystore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (keystore.Store, error) {
	if cfg.Keystore.Bucket == "" {
		return nil, fmt.Errorf("keystore bucket is required")
	}

	encryptionKey, err := hex.DecodeString(cfg.Keystore.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decode keystore encryption key: %w", err)
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Keystore.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Keystore.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Keystore.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using keystore bucket %s (region %s)", cfg.Keystore.Bucket, cfg.Keystore.Region)
	return keystore.NewS3Store(client, cfg.Keystore.Bucket, cfg.Keystore.KeyPrefix, encryptionKey)
}
