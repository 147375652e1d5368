package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"gigpay/auth"
	"gigpay/config"
	"gigpay/fees"
	"gigpay/gateway"
	"gigpay/models"
	"gigpay/observability"
	"gigpay/observability/logging"
	"gigpay/observability/otel"
	"gigpay/payments"
	"gigpay/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("GIGPAY_CONFIG"), "path to the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.Setup("gigpayd", cfg.Environment, logging.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "gigpayd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Traces:      cfg.Telemetry.Traces,
			Metrics:     cfg.Telemetry.Metrics,
		})
		if err != nil {
			log.Fatalf("telemetry init error: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
			}
		}()
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("database connection error: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate error: %v", err)
	}

	var khalti gateway.PaymentGateway
	if cfg.Khalti.SecretKey != "" {
		khalti = gateway.NewKhalti(cfg.Khalti.BaseURL, cfg.Khalti.SecretKey, cfg.Khalti.ReturnURL)
	}
	var esewa gateway.PaymentGateway
	if cfg.Esewa.SecretKey != "" {
		esewa = gateway.NewEsewa(cfg.Esewa.BaseURL, cfg.Esewa.ProductCode, cfg.Esewa.SecretKey, cfg.Esewa.ReturnURL)
	}

	processor := payments.New(payments.Config{
		DB:       db,
		Fees:     fees.NewCalculator(cfg.Fees.ClientRate, cfg.Fees.FreelancerRate),
		Gateways: gateway.NewRegistry(khalti, esewa),
		Metrics:  observability.Payments(),
		Logger:   logger,
	})

	srv := server.New(server.Config{
		DB:            db,
		Processor:     processor,
		Authenticator: auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience),
		Logger:        logger,
		WebhookRate:   cfg.Webhook.RatePerSecond,
		WebhookBurst:  cfg.Webhook.Burst,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", slog.String("error", err.Error()))
		}
	}()

	logger.Info("starting gigpayd",
		slog.String("addr", httpServer.Addr),
		slog.String("environment", cfg.Environment))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
