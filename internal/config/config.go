package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// Event store selection. DatabaseURL switches the event store to Postgres;
	// otherwise EventLogPath is used (line-delimited JSON, append-only).
	DatabaseURL  string
	EventLogPath string

	// Session transcript log (whole-file JSON array).
	SessionLogPath string

	// Optional Kafka mirror for terminal outcome events.
	KafkaBrokers []string
	KafkaTopic   string

	// Optional S3 archival of finished session transcripts.
	ArchiveBucket string
	ArchivePrefix string

	// Auth for write endpoints.
	AuthSecret      string
	AllowDebugToken bool
	DebugToken      string

	CatalogPath  string
	ContactEmail string
	ContactPhone string

	// Pricing knobs. Defaults mirror the production tuning.
	RollingWindowDays      int
	SigmoidMaxMargin       float64
	SigmoidK               float64
	SigmoidMidpoint        float64
	SigmoidThreshold       int
	PlateauMargin          float64
	PlateauDurationDays    int
	ActivityThreshold      int
	DeclineRate            float64
	DeclineStepDays        int
	WiggleMinPct           float64
	WiggleMinAmount        float64
	WiggleFloor            float64
	WiggleMaxMarginFrac    float64
	MinMarginBuffer        float64
	BulkSuggestTolerance   float64
	BulkThresholdTolerance int

	// Idle-session policy.
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

const (
	defaultAddr          = ":8071"
	defaultEventLog      = "negotiation_events.jsonl"
	defaultSessionLog    = "negotiation_sessions.json"
	defaultCatalog       = "products_firms.json"
	defaultContactEmail  = "sales@yourcompany.com"
	defaultContactPhone  = "+91-XXXXXXXXXX"
	defaultSessionTTL    = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

func Load() (Config, error) {
	cfg := Config{
		Addr:           getEnv("NEGOTIATOR_ADDR", defaultAddr),
		DatabaseURL:    firstNonEmpty(os.Getenv("NEGOTIATOR_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		EventLogPath:   getEnv("NEGOTIATOR_EVENT_LOG", defaultEventLog),
		SessionLogPath: getEnv("NEGOTIATOR_SESSION_LOG", defaultSessionLog),
		KafkaTopic:     getEnv("NEGOTIATOR_KAFKA_TOPIC", "negotiation-events"),
		ArchiveBucket:  os.Getenv("NEGOTIATOR_ARCHIVE_BUCKET"),
		ArchivePrefix:  os.Getenv("NEGOTIATOR_ARCHIVE_PREFIX"),

		AuthSecret:      os.Getenv("NEGOTIATOR_AUTH_SECRET"),
		AllowDebugToken: getBool("NEGOTIATOR_ALLOW_DEBUG_TOKEN", false),
		DebugToken:      os.Getenv("NEGOTIATOR_DEBUG_TOKEN"),

		CatalogPath:  getEnv("NEGOTIATOR_CATALOG", defaultCatalog),
		ContactEmail: getEnv("NEGOTIATOR_CONTACT_EMAIL", defaultContactEmail),
		ContactPhone: getEnv("NEGOTIATOR_CONTACT_PHONE", defaultContactPhone),

		RollingWindowDays:      getInt("NEGOTIATOR_ROLLING_WINDOW_DAYS", 30),
		SigmoidMaxMargin:       getFloat("NEGOTIATOR_SIGMOID_MAX_MARGIN", 20),
		SigmoidK:               getFloat("NEGOTIATOR_SIGMOID_K", 0.01),
		SigmoidMidpoint:        getFloat("NEGOTIATOR_SIGMOID_MIDPOINT", 750),
		SigmoidThreshold:       getInt("NEGOTIATOR_SIGMOID_THRESHOLD", 50),
		PlateauMargin:          getFloat("NEGOTIATOR_PLATEAU_MARGIN", 20),
		PlateauDurationDays:    getInt("NEGOTIATOR_PLATEAU_DURATION_DAYS", 15),
		ActivityThreshold:      getInt("NEGOTIATOR_ACTIVITY_THRESHOLD", 25),
		DeclineRate:            getFloat("NEGOTIATOR_DECLINE_RATE", 2),
		DeclineStepDays:        getInt("NEGOTIATOR_DECLINE_STEP_DAYS", 3),
		WiggleMinPct:           getFloat("NEGOTIATOR_WIGGLE_MIN_PCT", 0.05),
		WiggleMinAmount:        getFloat("NEGOTIATOR_WIGGLE_MIN_AMOUNT", 20),
		WiggleFloor:            getFloat("NEGOTIATOR_WIGGLE_FLOOR", 2),
		WiggleMaxMarginFrac:    getFloat("NEGOTIATOR_WIGGLE_MAX_MARGIN_FRAC", 0.5),
		MinMarginBuffer:        getFloat("NEGOTIATOR_MIN_MARGIN_BUFFER", 2),
		BulkSuggestTolerance:   getFloat("NEGOTIATOR_BULK_SUGGEST_TOLERANCE", 20),
		BulkThresholdTolerance: getInt("NEGOTIATOR_BULK_THRESHOLD_TOLERANCE", 5),

		SessionTTL:    getDuration("NEGOTIATOR_SESSION_TTL", defaultSessionTTL),
		SweepInterval: getDuration("NEGOTIATOR_SWEEP_INTERVAL", defaultSweepInterval),
	}
	if brokers := os.Getenv("NEGOTIATOR_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitCSV(brokers)
	}
	if !cfg.AllowDebugToken && cfg.AuthSecret == "" {
		return Config{}, fmt.Errorf("NEGOTIATOR_AUTH_SECRET required unless NEGOTIATOR_ALLOW_DEBUG_TOKEN=true")
	}
	if cfg.AllowDebugToken && cfg.DebugToken == "" {
		return Config{}, fmt.Errorf("NEGOTIATOR_DEBUG_TOKEN required when NEGOTIATOR_ALLOW_DEBUG_TOKEN=true")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
