package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Booking   BookingConfig   `yaml:"booking"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Payment   PaymentConfig   `yaml:"payment"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Worker    WorkerConfig    `yaml:"worker"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDoc string `yaml:"swagger_doc"`
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
	ReservationTopic   string   `yaml:"reservation_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	AlertsTopic        string   `yaml:"alerts_topic"`
	GroupID            string   `yaml:"group_id"`
}

type BookingConfig struct {
	HoldTTLMinutes           int `yaml:"hold_ttl_minutes"`
	MaxSeatsPerBooking       int `yaml:"max_seats_per_booking"`
	IdempotencyWindowSeconds int `yaml:"idempotency_window_seconds"`
	ConflictRetries          int `yaml:"conflict_retries"`
	SnapshotCacheTTLSeconds  int `yaml:"snapshot_cache_ttl_seconds"`
}

// MethodFeeConfig describes the surcharge for one payment method.
// Kind is either "percent" (basis points of the subtotal) or "flat" (cents).
type MethodFeeConfig struct {
	Kind        string `yaml:"kind"`
	BasisPoints int64  `yaml:"basis_points"`
	FlatCents   int64  `yaml:"flat_cents"`
}

type PricingConfig struct {
	ServiceFeeCents int64                      `yaml:"service_fee_cents"`
	Methods         map[string]MethodFeeConfig `yaml:"methods"`
}

type PaymentConfig struct {
	GatewayURL           string `yaml:"gateway_url"`
	VerifyTimeoutSeconds int    `yaml:"verify_timeout_seconds"`
}

type RateLimitConfig struct {
	MaxAttempts   int `yaml:"max_attempts"`
	WindowMinutes int `yaml:"window_minutes"`
}

type WorkerConfig struct {
	ExpirySweepSeconds int    `yaml:"expiry_sweep_seconds"`
	SweepBatchSize     int    `yaml:"sweep_batch_size"`
	TicketDir          string `yaml:"ticket_dir"`
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
