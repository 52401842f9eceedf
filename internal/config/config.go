package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// DB stores the postgres connection settings.
type DB struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

// DSN renders the pgx connection string.
func (d DB) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		d.User, d.Pass, d.Host, d.Port, d.Name)
}

// Weights controls the relative influence of each scoring factor.
// They are normalized at scoring time, so they only need to be positive.
type Weights struct {
	Distance float64
	Detour   float64
	Time     float64
	Rating   float64
	Price    float64
}

// Matching stores the matching engine settings.
type Matching struct {
	MaxDetourPercent float64
	MaxDistanceKm    float64
	MinScore         float64
	PriceFlexibility float64 // fraction of suggested price tolerated as delta
	BaseFare         float64
	PerKmRate        float64
	MaxResults       int
	Weights          Weights
}

// Escrow stores the escrow engine settings.
type Escrow struct {
	DefaultHoldPeriod  time.Duration
	MaxHoldPeriod      time.Duration
	AutoReleaseAfter   time.Duration
	PlatformFeePercent float64
	MaxCodeAttempts    int
	Currency           string
}

// Sweep stores the background sweeper settings.
type Sweep struct {
	CronSpec  string
	BatchSize int
}

// Kafka stores the notification publisher settings. Empty brokers disable
// publishing (outbox rows stay pending).
type Kafka struct {
	Brokers     []string
	NotifyTopic string
}

// RateLimit stores the per-client HTTP limiter settings.
type RateLimit struct {
	RPS   float64
	Burst int
}

// Config stores all service settings.
type Config struct {
	Port      int
	DB        DB
	Matching  Matching
	Escrow    Escrow
	Sweep     Sweep
	Kafka     Kafka
	RateLimit RateLimit
}

// Load reads configuration in order: .env (if present) → environment → flags.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg := &Config{
		Port:      envInt("PORT", DefaultPort()),
		DB:        loadDB(),
		Matching:  loadMatching(),
		Escrow:    loadEscrow(),
		Sweep:     loadSweep(),
		Kafka:     loadKafka(),
		RateLimit: loadRateLimit(),
	}

	if !pflag.Parsed() {
		pflag.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
		pflag.Parse()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Escrow.PlatformFeePercent < 0 || c.Escrow.PlatformFeePercent >= 100 {
		return fmt.Errorf("invalid platform fee percent: %v", c.Escrow.PlatformFeePercent)
	}
	if c.Escrow.DefaultHoldPeriod > c.Escrow.MaxHoldPeriod {
		return fmt.Errorf("default hold period %v exceeds max %v",
			c.Escrow.DefaultHoldPeriod, c.Escrow.MaxHoldPeriod)
	}
	if c.Matching.MaxDetourPercent <= 0 {
		return fmt.Errorf("invalid max detour percent: %v", c.Matching.MaxDetourPercent)
	}
	return nil
}

func loadDB() DB {
	d := DefaultDB()
	d.Host = envStr("DB_HOST", d.Host)
	d.Port = envStr("DB_PORT", d.Port)
	d.User = envStr("DB_USER", d.User)
	d.Pass = envStr("DB_PASS", d.Pass)
	d.Name = envStr("DB_NAME", d.Name)
	return d
}

func loadMatching() Matching {
	m := DefaultMatching()
	m.MaxDetourPercent = envFloat("MATCHING_MAX_DETOUR_PERCENT", m.MaxDetourPercent)
	m.MaxDistanceKm = envFloat("MATCHING_MAX_DISTANCE_KM", m.MaxDistanceKm)
	m.MinScore = envFloat("MATCHING_MIN_SCORE", m.MinScore)
	m.MaxResults = envInt("MATCHING_MAX_RESULTS", m.MaxResults)
	return m
}

func loadEscrow() Escrow {
	e := DefaultEscrow()
	e.DefaultHoldPeriod = envDuration("ESCROW_DEFAULT_HOLD", e.DefaultHoldPeriod)
	e.MaxHoldPeriod = envDuration("ESCROW_MAX_HOLD", e.MaxHoldPeriod)
	e.AutoReleaseAfter = envDuration("ESCROW_AUTO_RELEASE_AFTER", e.AutoReleaseAfter)
	e.PlatformFeePercent = envFloat("ESCROW_PLATFORM_FEE_PERCENT", e.PlatformFeePercent)
	e.MaxCodeAttempts = envInt("ESCROW_MAX_CODE_ATTEMPTS", e.MaxCodeAttempts)
	e.Currency = envStr("ESCROW_CURRENCY", e.Currency)
	return e
}

func loadSweep() Sweep {
	s := DefaultSweep()
	s.CronSpec = envStr("SWEEP_CRON", s.CronSpec)
	s.BatchSize = envInt("SWEEP_BATCH_SIZE", s.BatchSize)
	return s
}

func loadKafka() Kafka {
	k := DefaultKafka()
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		k.Brokers = strings.Split(v, ",")
	}
	k.NotifyTopic = envStr("KAFKA_NOTIFY_TOPIC", k.NotifyTopic)
	return k
}

func loadRateLimit() RateLimit {
	r := DefaultRateLimit()
	r.RPS = envFloat("RATE_LIMIT_RPS", r.RPS)
	r.Burst = envInt("RATE_LIMIT_BURST", r.Burst)
	return r
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
