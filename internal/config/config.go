package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Scheduler config
	TickInterval    time.Duration // default scan interval for campaigns without their own
	TickConcurrency int           // subjects processed in parallel per tick

	// AWS Services
	AWSRegion    string
	SESFromEmail string
	SNSRegion    string // AWS region for SNS (SMS)

	// SQS config (optional stage event hand-off)
	SQSRegion   string
	SQSQueueURL string

	// Webhook config (optional stage event hand-off)
	WebhookURL     string
	WebhookTimeout int // seconds

	// Business identity rendered into outgoing messages
	BusinessName   string
	BusinessPhone  string
	BookingBaseURL string

	// API protection
	RateLimitRequests int
	RateLimitWindow   time.Duration
	IdempotencyTTL    time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "lalithlochan",
		DBPassword: "",
		DBName:     "cadence",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		TickInterval:    24 * time.Hour,
		TickConcurrency: 4,

		AWSRegion:    "us-east-1",
		SESFromEmail: "noreply@cadence.local",

		BusinessName:   "StoneRiver Junk Removal",
		BusinessPhone:  "(612) 555-0142",
		BookingBaseURL: "http://localhost:3000",

		RateLimitRequests: 30,
		RateLimitWindow:   time.Minute,
		IdempotencyTTL:    24 * time.Hour,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Scheduler config
	if interval := os.Getenv("TICK_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid TICK_INTERVAL: %w", err)
		}
		cfg.TickInterval = d
	}

	if conc := os.Getenv("TICK_CONCURRENCY"); conc != "" {
		c, err := strconv.Atoi(conc)
		if err != nil {
			return nil, fmt.Errorf("invalid TICK_CONCURRENCY: %w", err)
		}
		cfg.TickConcurrency = c
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	// SNS config for SMS
	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else {
		cfg.SNSRegion = cfg.AWSRegion
	}

	// SQS config
	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}

	if url := os.Getenv("SQS_QUEUE_URL"); url != "" {
		cfg.SQSQueueURL = url
	}

	// Webhook config
	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		cfg.WebhookURL = url
	}

	if timeout := os.Getenv("WEBHOOK_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
		}
		cfg.WebhookTimeout = t
	} else {
		cfg.WebhookTimeout = 30
	}

	// Business identity
	if name := os.Getenv("BUSINESS_NAME"); name != "" {
		cfg.BusinessName = name
	}

	if phone := os.Getenv("BUSINESS_PHONE"); phone != "" {
		cfg.BusinessPhone = phone
	}

	if url := os.Getenv("BOOKING_BASE_URL"); url != "" {
		cfg.BookingBaseURL = url
	}

	// API protection
	if limit := os.Getenv("RATE_LIMIT_REQUESTS"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_REQUESTS: %w", err)
		}
		cfg.RateLimitRequests = l
	}

	if window := os.Getenv("RATE_LIMIT_WINDOW"); window != "" {
		d, err := time.ParseDuration(window)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
		}
		cfg.RateLimitWindow = d
	}

	if ttl := os.Getenv("IDEMPOTENCY_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
		}
		cfg.IdempotencyTTL = d
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects configurations the process could not run correctly
// with. The campaign stage tables themselves are validated separately
// when the registry is built.
func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.TickConcurrency <= 0 {
		return fmt.Errorf("TICK_CONCURRENCY must be positive, got %d", c.TickConcurrency)
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests)
	}
	return nil
}
