package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingTopic       string   `yaml:"booking_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

// BookingConfig carries every tunable of the booking lifecycle: pricing
// markups, approval and grace windows, extension bounds. The driver markup
// is configuration, not logic, and must be applied through the policy
// package everywhere a price is quoted or charged.
type BookingConfig struct {
	DriverMarkupPercent       float64 `yaml:"driver_markup_percent"`
	ServiceFeePercent         float64 `yaml:"service_fee_percent"`
	ApprovalWindowMinutes     int     `yaml:"approval_window_minutes"`
	CancellationGraceMinutes  int     `yaml:"cancellation_grace_minutes"`
	FreeCancellationCutoffMin int     `yaml:"free_cancellation_cutoff_minutes"`
	OverstayGraceMinutes      int     `yaml:"overstay_grace_minutes"`
	OverstayRateCentsPerHour  int64   `yaml:"overstay_rate_cents_per_hour"`
	MinExtensionHours         float64 `yaml:"min_extension_hours"`
	MaxExtensionHours         float64 `yaml:"max_extension_hours"`
	PendingExtensionTTLMin    int     `yaml:"pending_extension_ttl_minutes"`
	OperationLockSeconds      int     `yaml:"operation_lock_seconds"`
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes"`
	OverstaySweepMinutes   int `yaml:"overstay_sweep_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
