package config

import "time"

const defaultPort = 8080

var defaultDB = DB{
	Host: "127.0.0.1",
	Port: "5432",
	User: "crowdship",
	Pass: "crowdship",
	Name: "crowdship",
}

// Distance and detour dominate by default; price matters least.
var defaultMatching = Matching{
	MaxDetourPercent: 30,
	MaxDistanceKm:    50,
	MinScore:         40,
	PriceFlexibility: 0.20,
	BaseFare:         3.0,
	PerKmRate:        1.1,
	MaxResults:       10,
	Weights: Weights{
		Distance: 0.30,
		Detour:   0.25,
		Time:     0.20,
		Rating:   0.15,
		Price:    0.10,
	},
}

var defaultEscrow = Escrow{
	DefaultHoldPeriod:  48 * time.Hour,
	MaxHoldPeriod:      168 * time.Hour,
	AutoReleaseAfter:   72 * time.Hour,
	PlatformFeePercent: 15,
	MaxCodeAttempts:    5,
	Currency:           "EUR",
}

var defaultSweep = Sweep{
	CronSpec:  "@every 5m",
	BatchSize: 100,
}

var defaultKafka = Kafka{
	Brokers:     nil,
	NotifyTopic: "crowdship.notifications",
}

var defaultRateLimit = RateLimit{
	RPS:   10,
	Burst: 20,
}

// DefaultPort returns the default port.
func DefaultPort() int {
	return defaultPort
}

// DefaultDB returns the default database settings.
func DefaultDB() DB {
	return defaultDB
}

// DefaultMatching returns the default matching engine settings.
func DefaultMatching() Matching {
	return defaultMatching
}

// DefaultEscrow returns the default escrow engine settings.
func DefaultEscrow() Escrow {
	return defaultEscrow
}

// DefaultSweep returns the default sweeper settings.
func DefaultSweep() Sweep {
	return defaultSweep
}

// DefaultKafka returns the default notification publisher settings.
func DefaultKafka() Kafka {
	return defaultKafka
}

// DefaultRateLimit returns the default HTTP limiter settings.
func DefaultRateLimit() RateLimit {
	return defaultRateLimit
}
