package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MiladFarazian/park-and-sync-sub001/config"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/cache"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/email"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/kafka"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/payments"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/repository"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/service/booking"
	"github.com/jackc/pgx/v5/pgxpool"
	kafkaGo "github.com/segmentio/kafka-go"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.PendingExtensionTTLMin)*time.Minute)
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

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	emailSender := email.NewSender()

	go func() {
		if err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
			var event kafka.BookingEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.Printf("decode event error: %v", err)
				return nil
			}
			return emailSender.Send(ctx, event)
		}); err != nil {
			log.Printf("consumer stopped: %v", err)
		}
	}()

	expireTicker := time.NewTicker(time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute)
	defer expireTicker.Stop()
	overstayTicker := time.NewTicker(time.Duration(cfg.Worker.OverstaySweepMinutes) * time.Minute)
	defer overstayTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-expireTicker.C:
			expired, err := bookingService.ExpireHeldBookings(ctx)
			if err != nil {
				log.Printf("expire bookings error: %v", err)
				continue
			}
			if len(expired) > 0 {
				log.Printf("expired %d bookings", len(expired))
			}
		case <-overstayTicker.C:
			detected, err := bookingService.DetectOverdueBookings(ctx)
			if err != nil {
				log.Printf("overstay sweep error: %v", err)
				continue
			}
			if len(detected) > 0 {
				log.Printf("flagged %d overstayed bookings", len(detected))
			}
		case s := <-sig:
			log.Printf("received signal %v, shutting down", s)
			return
		}
	}
}
