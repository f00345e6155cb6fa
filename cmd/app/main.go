package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MiladFarazian/park-and-sync-sub001/config"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/bootstrap"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/cache"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/kafka"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/payments"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/repository"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/service/booking"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.PendingExtensionTTLMin)*time.Minute)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	gateway := payments.NewSandboxGateway()

	bookingRepo := repository.NewBookingRepository(pool)
	bookingService := booking.NewBookingService(
		bookingRepo,
		gateway,
		redisCache,
		producer,
		cfg.Kafka.BookingTopic,
		booking.SettingsFromConfig(cfg.Booking),
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
	)

	if err := bootstrap.Run(ctx, cfg, bookingService); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
