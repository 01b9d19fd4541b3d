package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NewRelic  NewRelicConfig
	Kafka     KafkaConfig
	Storage   StorageConfig
	Locking   LockingConfig
	Events    EventsConfig
	Features  Features
	Policy    Policy
	Scheduler SchedulerConfig
	Gateway   GatewayConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL             string // Optional: overrides the discrete fields
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// KafkaConfig holds the event stream producer configuration.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// StorageConfig selects the ledger backend: "memory" or "postgres".
type StorageConfig struct {
	Backend string
}

// LockingConfig selects the per-entity lock backend: "local" or "redis".
type LockingConfig struct {
	Backend string
	TTL     time.Duration
	Wait    time.Duration
}

// EventsConfig lists the event sinks: any of "log", "redis", "kafka".
type EventsConfig struct {
	Sinks  []string
	Stream string
}

// HasSink reports whether name is among the configured sinks.
func (e EventsConfig) HasSink(name string) bool {
	for _, s := range e.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// Features are the named switches gating each optional stage.
type Features struct {
	TransactionProcessing bool
	FraudDetection        bool
	PCICompliance         bool
	Tokenization          bool
	AMLChecks             bool
	KYCValidation         bool
	ThreeDSecure          bool
	IntelligentRouting    bool
	Settlement            bool
	PartialRefund         bool
	FullRefund            bool
	AutoRefund            bool
	DisputeHandling       bool
	ChargebackDefense     bool
	Reconciliation        bool
	RecurringPayments     bool
	RetryLogic            bool
}

// Policy holds the read-mostly business parameters shared by every operation.
type Policy struct {
	HighRiskThreshold       float64
	MediumRiskThreshold     float64
	HighValueThreshold      decimal.Decimal
	RefundFeePercentage     decimal.Decimal
	DisputeWindow           time.Duration
	AuthorizationTTL        time.Duration
	SettlementDelay         time.Duration
	ReconciliationTolerance decimal.Decimal
	VelocityWindow          time.Duration
	MaxSettlementRetries    int
	SettlementCurrency      string
	ExchangeRates           map[string]decimal.Decimal
	HighRiskCountries       []string
	ThreeDSecureThreshold   decimal.Decimal
}

// Rate returns the number of settlement-currency units per unit of from.
// An unknown pair returns 1 and false.
func (p Policy) Rate(from string) (decimal.Decimal, bool) {
	to := p.SettlementCurrency
	if to == "" || strings.EqualFold(from, to) {
		return decimal.NewFromInt(1), true
	}
	rate, ok := p.ExchangeRates[strings.ToUpper(from)+":"+strings.ToUpper(to)]
	if !ok {
		return decimal.NewFromInt(1), false
	}
	return rate, true
}

// IsHighRiskCountry reports whether country is on the high risk list.
func (p Policy) IsHighRiskCountry(country string) bool {
	for _, c := range p.HighRiskCountries {
		if strings.EqualFold(c, country) {
			return true
		}
	}
	return false
}

// SchedulerConfig holds recurring sweep configuration.
type SchedulerConfig struct {
	Enabled      bool
	PollInterval time.Duration
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
}

// GatewayConfig holds the simulated gateway configuration.
type GatewayConfig struct {
	AuthorizationLimit decimal.Decimal
}

// Load loads configuration from environment variables.
func Load() *Config {
	return LoadFrom(os.Getenv)
}

// LoadFrom builds the configuration from an arbitrary lookup function.
// LoadFrom(func(string) string { return "" }) yields the defaults.
func LoadFrom(lookup func(string) string) *Config {
	e := env(lookup)
	return &Config{
		Server: ServerConfig{
			Port:           e.getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    e.getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   e.getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			AllowedOrigins: e.getListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Log: LogConfig{
			Level: e.getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:             e.getEnv("DATABASE_URL", ""),
			Host:            e.getEnv("DB_HOST", "localhost"),
			Port:            e.getEnv("DB_PORT", "5432"),
			User:            e.getEnv("DB_USER", "postgres"),
			Password:        e.getEnv("DB_PASSWORD", "postgres"),
			DBName:          e.getEnv("DB_NAME", "payments"),
			SSLMode:         e.getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    e.getIntEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    e.getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: e.getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     e.getEnv("REDIS_ADDR", "localhost:6379"),
			Password: e.getEnv("REDIS_PASSWORD", ""),
			DB:       e.getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    e.getEnv("NEW_RELIC_APP_NAME", "payment-lifecycle-service"),
			LicenseKey: e.getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    e.getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Kafka: KafkaConfig{
			Brokers:  e.getListEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:    e.getEnv("KAFKA_TOPIC", "payments.transaction-events"),
			ClientID: e.getEnv("KAFKA_CLIENT_ID", "payment-lifecycle-service"),
		},
		Storage: StorageConfig{
			Backend: e.getEnv("STORAGE_BACKEND", "memory"),
		},
		Locking: LockingConfig{
			Backend: e.getEnv("LOCK_BACKEND", "local"),
			TTL:     e.getDurationEnv("LOCK_TTL", 30*time.Second),
			Wait:    e.getDurationEnv("LOCK_WAIT", 5*time.Second),
		},
		Events: EventsConfig{
			Sinks:  e.getListEnv("EVENT_SINKS", []string{"log"}),
			Stream: e.getEnv("EVENT_STREAM", "payments:transaction-events"),
		},
		Features: Features{
			TransactionProcessing: e.getBoolEnv("PAYMENT_ENABLE_TRANSACTION_PROCESSING", true),
			FraudDetection:        e.getBoolEnv("PAYMENT_ENABLE_FRAUD_DETECTION", true),
			PCICompliance:         e.getBoolEnv("PAYMENT_ENABLE_PCI_COMPLIANCE", true),
			Tokenization:          e.getBoolEnv("PAYMENT_ENABLE_TOKENIZATION", true),
			AMLChecks:             e.getBoolEnv("PAYMENT_ENABLE_AML_CHECKS", true),
			KYCValidation:         e.getBoolEnv("PAYMENT_ENABLE_KYC_VALIDATION", true),
			ThreeDSecure:          e.getBoolEnv("PAYMENT_ENABLE_3D_SECURE", true),
			IntelligentRouting:    e.getBoolEnv("PAYMENT_ENABLE_INTELLIGENT_ROUTING", true),
			Settlement:            e.getBoolEnv("PAYMENT_ENABLE_SETTLEMENT", true),
			PartialRefund:         e.getBoolEnv("PAYMENT_ENABLE_PARTIAL_REFUND", true),
			FullRefund:            e.getBoolEnv("PAYMENT_ENABLE_FULL_REFUND", true),
			AutoRefund:            e.getBoolEnv("PAYMENT_ENABLE_AUTO_REFUND", false),
			DisputeHandling:       e.getBoolEnv("PAYMENT_ENABLE_DISPUTE_HANDLING", true),
			ChargebackDefense:     e.getBoolEnv("PAYMENT_ENABLE_CHARGEBACK_DEFENSE", true),
			Reconciliation:        e.getBoolEnv("PAYMENT_ENABLE_RECONCILIATION", true),
			RecurringPayments:     e.getBoolEnv("PAYMENT_ENABLE_RECURRING_PAYMENTS", true),
			RetryLogic:            e.getBoolEnv("PAYMENT_ENABLE_RETRY_LOGIC", true),
		},
		Policy: Policy{
			HighRiskThreshold:       e.getFloatEnv("FRAUD_HIGH_RISK_THRESHOLD", 0.75),
			MediumRiskThreshold:     e.getFloatEnv("FRAUD_MEDIUM_RISK_THRESHOLD", 0.50),
			HighValueThreshold:      e.getDecimalEnv("ROUTING_HIGH_VALUE_THRESHOLD", decimal.NewFromInt(5000)),
			RefundFeePercentage:     e.getDecimalEnv("REFUND_FEE_PERCENTAGE", decimal.RequireFromString("0.02")),
			DisputeWindow:           e.getDurationEnv("DISPUTE_WINDOW", 45*24*time.Hour),
			AuthorizationTTL:        e.getDurationEnv("AUTHORIZATION_TTL", 24*time.Hour),
			SettlementDelay:         e.getDurationEnv("SETTLEMENT_DELAY", 2*time.Minute),
			ReconciliationTolerance: e.getDecimalEnv("RECONCILIATION_TOLERANCE", decimal.Zero),
			VelocityWindow:          e.getDurationEnv("VELOCITY_WINDOW", time.Hour),
			MaxSettlementRetries:    e.getIntEnv("SETTLEMENT_MAX_RETRIES", 3),
			SettlementCurrency:      e.getEnv("SETTLEMENT_CURRENCY", "USD"),
			ExchangeRates:           e.getRatesEnv("EXCHANGE_RATES"),
			HighRiskCountries:       e.getListEnv("HIGH_RISK_COUNTRIES", nil),
			ThreeDSecureThreshold:   e.getDecimalEnv("THREE_D_SECURE_THRESHOLD", decimal.NewFromInt(1000)),
		},
		Scheduler: SchedulerConfig{
			Enabled:      e.getBoolEnv("SCHEDULER_ENABLED", true),
			PollInterval: e.getDurationEnv("SCHEDULER_POLL_INTERVAL", time.Minute),
			Workers:      e.getIntEnv("SCHEDULER_WORKERS", 4),
			MaxRetries:   e.getIntEnv("SCHEDULER_MAX_RETRIES", 3),
			RetryBackoff: e.getDurationEnv("SCHEDULER_RETRY_BACKOFF", time.Hour),
		},
		Gateway: GatewayConfig{
			AuthorizationLimit: e.getDecimalEnv("GATEWAY_AUTHORIZATION_LIMIT", decimal.Zero),
		},
	}
}

// Defaults returns the configuration with no environment overrides.
func Defaults() *Config {
	return LoadFrom(func(string) string { return "" })
}

type env func(string) string

func (e env) getEnv(key, defaultValue string) string {
	if value := e(key); value != "" {
		return value
	}
	return defaultValue
}

func (e env) getIntEnv(key string, defaultValue int) int {
	if value := e(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func (e env) getBoolEnv(key string, defaultValue bool) bool {
	if value := e(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func (e env) getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := e(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func (e env) getFloatEnv(key string, defaultValue float64) float64 {
	if value := e(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func (e env) getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := e(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func (e env) getListEnv(key string, defaultValue []string) []string {
	value := e(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getRatesEnv parses "EUR:USD=1.08,GBP:USD=1.27". Malformed entries are skipped.
func (e env) getRatesEnv(key string) map[string]decimal.Decimal {
	rates := make(map[string]decimal.Decimal)
	for _, entry := range e.getListEnv(key, nil) {
		pair, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || !rate.IsPositive() {
			continue
		}
		rates[strings.ToUpper(strings.TrimSpace(pair))] = rate
	}
	return rates
}
