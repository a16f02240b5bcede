package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Feed and actuation backends.
const (
	FeedPostgres = "postgres"
	FeedKafka    = "kafka"

	ActuationKafka = "kafka"
	ActuationLog   = "log"
)

// Config holds typed configuration for the dispatcher service.
type Config struct {
	LogLevel    string
	PostgresDSN string

	Feed         string
	KafkaBrokers string
	FeedTopic    string
	FeedGroup    string
	Actuation    string
	RedisAddr    string // empty disables the status mirror

	MaxConcurrency int
	HandlerTimeout time.Duration
	ShutdownGrace  time.Duration
	GateLock       bool
	GuideSettle    time.Duration

	MaintenanceSchedule string // empty disables maintenance sweeps
	ReplayGrace         time.Duration
	ReapAfter           time.Duration

	MetricsAddr  string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:            v.GetString("log_level"),
		PostgresDSN:         v.GetString("postgres_dsn"),
		Feed:                strings.ToLower(v.GetString("feed")),
		KafkaBrokers:        v.GetString("kafka_brokers"),
		FeedTopic:           v.GetString("feed_topic"),
		FeedGroup:           v.GetString("feed_group"),
		Actuation:           strings.ToLower(v.GetString("actuation")),
		RedisAddr:           v.GetString("redis_addr"),
		MaxConcurrency:      v.GetInt("max_concurrency"),
		HandlerTimeout:      v.GetDuration("handler_timeout"),
		ShutdownGrace:       v.GetDuration("shutdown_grace"),
		GateLock:            v.GetBool("gate_lock"),
		GuideSettle:         v.GetDuration("guide_settle"),
		MaintenanceSchedule: v.GetString("maintenance_schedule"),
		ReplayGrace:         v.GetDuration("replay_grace"),
		ReapAfter:           v.GetDuration("reap_after"),
		MetricsAddr:         v.GetString("metrics_addr"),
		OTelEndpoint:        v.GetString("otel_endpoint"),
	}
}

// Brokers splits KafkaBrokers on commas, dropping blanks.
func (c Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate rejects combinations serve cannot start with.
func (c Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("postgres_dsn is required")
	}
	switch c.Feed {
	case FeedPostgres:
	case FeedKafka:
		if len(c.Brokers()) == 0 {
			return fmt.Errorf("feed %q requires kafka_brokers", c.Feed)
		}
	default:
		return fmt.Errorf("unknown feed %q (want %s or %s)", c.Feed, FeedPostgres, FeedKafka)
	}
	switch c.Actuation {
	case ActuationLog:
	case ActuationKafka:
		if len(c.Brokers()) == 0 {
			return fmt.Errorf("actuation %q requires kafka_brokers", c.Actuation)
		}
	default:
		return fmt.Errorf("unknown actuation %q (want %s or %s)", c.Actuation, ActuationKafka, ActuationLog)
	}
	if c.HandlerTimeout < 0 || c.ShutdownGrace < 0 || c.GuideSettle < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}
