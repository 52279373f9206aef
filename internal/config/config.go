package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Aggregator polling and retry policy.
	AggregatorURL    string
	SondeFilter      string
	PollInterval     time.Duration
	FetchTimeout     time.Duration
	FetchMaxAttempts int
	FetchBackoff     time.Duration
	FetchMaxBackoff  time.Duration

	// Registry lifecycle.
	ReferenceLat     float64
	ReferenceLon     float64
	ActiveTimeout    time.Duration
	VisibilityWindow time.Duration
	HistoryCapacity  int
	Location         *time.Location

	// Kafka snapshot publisher.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	// MQTT snapshot publisher.
	MQTTEnabled     bool
	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string

	// SQLite snapshot store.
	SQLiteEnabled bool
	SQLitePath    string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// OpenTelemetry.
	TracingEnabled     bool
	TracingExporter    string
	OTLPEndpoint       string
	TracingSampleRatio float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		AggregatorURL: sharedcfg.EnvOrDefault("AGGREGATOR_URL", "http://localhost:3000/api/radiosondy"),
		SondeFilter:   strings.TrimSpace(os.Getenv("SONDE_FILTER")),

		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "sonde-snapshots"),

		MQTTBroker:      sharedcfg.EnvOrDefault("MQTT_BROKER", "localhost"),
		MQTTClientID:    sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "sonde-etl"),
		MQTTTopicPrefix: strings.TrimRight(sharedcfg.EnvOrDefault("MQTT_TOPIC_PREFIX", "sondes"), "/"),

		SQLitePath: sharedcfg.EnvOrDefault("SQLITE_PATH", "data/sondes.db"),

		TracingExporter: strings.ToLower(sharedcfg.EnvOrDefault("TRACING_EXPORTER", "stdout")),
		OTLPEndpoint:    os.Getenv("OTLP_ENDPOINT"),
	}

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"POLL_INTERVAL", "5s", &cfg.PollInterval},
		{"FETCH_TIMEOUT", "30s", &cfg.FetchTimeout},
		{"FETCH_BACKOFF", "1200ms", &cfg.FetchBackoff},
		{"FETCH_MAX_BACKOFF", "10s", &cfg.FetchMaxBackoff},
		{"ACTIVE_TIMEOUT", "900s", &cfg.ActiveTimeout},
		{"VISIBILITY_WINDOW", "6h", &cfg.VisibilityWindow},
		{"MAPBOX_TIMEOUT", "5s", &cfg.MapboxTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = parsePositiveDuration(d.key, d.fallback); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"FETCH_MAX_ATTEMPTS", 3, &cfg.FetchMaxAttempts},
		{"HISTORY_CAPACITY", 600, &cfg.HistoryCapacity},
		{"MQTT_PORT", 1883, &cfg.MQTTPort},
	}
	for _, n := range ints {
		if *n.dst, err = parsePositiveInt(n.key, n.fallback); err != nil {
			return nil, err
		}
	}
	cfg.MapboxCacheSize = parseMapboxCacheSize()

	if cfg.ReferenceLat, err = parseFloat("REFERENCE_LAT", 54.546, -90, 90); err != nil {
		return nil, err
	}
	if cfg.ReferenceLon, err = parseFloat("REFERENCE_LON", 18.5501, -180, 180); err != nil {
		return nil, err
	}
	if cfg.TracingSampleRatio, err = parseFloat("TRACING_SAMPLE_RATIO", 1.0, 0, 1); err != nil {
		return nil, err
	}

	if cfg.Location, err = parseLocation(sharedcfg.EnvOrDefault("LOCAL_TIMEZONE", "Local")); err != nil {
		return nil, err
	}

	for _, b := range []struct {
		key string
		dst *bool
	}{
		{"KAFKA_ENABLED", &cfg.KafkaEnabled},
		{"MQTT_ENABLED", &cfg.MQTTEnabled},
		{"SQLITE_ENABLED", &cfg.SQLiteEnabled},
		{"TRACING_ENABLED", &cfg.TracingEnabled},
	} {
		if *b.dst, err = parseBool(b.key, false); err != nil {
			return nil, err
		}
	}

	cfg.MapboxToken = os.Getenv("MAPBOX_TOKEN")
	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		cfg.MapboxEnabled = v == "true"
	}

	if cfg.AggregatorURL == "" {
		return nil, errors.New("AGGREGATOR_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
	}
	if cfg.MQTTPort > 65535 {
		return nil, errors.New("invalid MQTT_PORT: must be 1-65535")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	switch cfg.TracingExporter {
	case "stdout", "otlp", "otlpgrpc":
	default:
		return nil, fmt.Errorf("invalid TRACING_EXPORTER %q: must be stdout or otlp", cfg.TracingExporter)
	}

	return cfg, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseFloat(key string, fallback, lo, hi float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("invalid %s: must be a number in [%g, %g]", key, lo, hi)
	}
	return v, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return v, nil
}

func parseLocation(name string) (*time.Location, error) {
	if strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid LOCAL_TIMEZONE: %w", err)
	}
	return loc, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
