package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database     DatabaseConfig
	Cities       CitiesConfig
	GTFSStatic   GTFSStaticConfig
	GTFSRealtime GTFSRealtimeConfig
	ScheduleAPI  ScheduleAPIConfig
	HTTP         HTTPConfig
	Maintenance  MaintenanceConfig
	Logging      LoggingConfig
}

// DatabaseConfig selects the catalog store. Driver is "sqlite" (default,
// DSN is a file path) or "postgres" (DSN built from the host fields unless
// DB_DSN is set).
type DatabaseConfig struct {
	Driver   string
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type CitiesConfig struct {
	SeedFile    string // bundled YAML list
	OverlayFile string // persisted sync state per city
	ActiveFile  string // persisted active city
	DefaultCity string
}

// GTFSStaticConfig for the dated static files in the object store
type GTFSStaticConfig struct {
	StoreURL      string // HTTP object store base; empty uses StoreDir
	StoreDir      string
	DownloadDir   string
	CheckInterval time.Duration // 0 disables periodic checks
	MaxRetries    uint64
}

// GTFSRealtimeConfig for the per-city realtime feeds
type GTFSRealtimeConfig struct {
	PollingInterval time.Duration
	RequestTimeout  time.Duration
}

type ScheduleAPIConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

type HTTPConfig struct {
	Addr           string
	AllowedOrigins string
}

// MaintenanceConfig for purging stale city partitions. 0 disables it.
type MaintenanceConfig struct {
	Interval time.Duration
}

type LoggingConfig struct {
	Level      string
	FilePath   string
	DiscordURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			DSN:      getEnv("DB_DSN", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "nextstop"),
		},
		Cities: CitiesConfig{
			SeedFile:    getEnv("CITIES_SEED_FILE", "configs/cities.yml"),
			OverlayFile: getEnv("CITIES_STATE_FILE", "data/cities.json"),
			ActiveFile:  getEnv("ACTIVE_CITY_FILE", "data/active_city.json"),
			DefaultCity: getEnv("DEFAULT_CITY", ""),
		},
		GTFSStatic: GTFSStaticConfig{
			StoreURL:      getEnv("STATIC_STORE_URL", ""),
			StoreDir:      getEnv("STATIC_STORE_DIR", "data/store"),
			DownloadDir:   getEnv("STATIC_DOWNLOAD_DIR", "/tmp/nextstop-static"),
			CheckInterval: getDurationEnv("STATIC_CHECK_INTERVAL", 0),
			MaxRetries:    uint64(getIntEnv("STATIC_DOWNLOAD_RETRIES", 3)),
		},
		GTFSRealtime: GTFSRealtimeConfig{
			PollingInterval: getDurationEnv("REALTIME_POLL_INTERVAL", 30*time.Second),
			RequestTimeout:  getDurationEnv("REALTIME_REQUEST_TIMEOUT", 15*time.Second),
		},
		ScheduleAPI: ScheduleAPIConfig{
			CacheSize: getIntEnv("SCHEDULE_API_CACHE_SIZE", 1000),
			CacheTTL:  getDurationEnv("SCHEDULE_API_CACHE_TTL", 20*time.Second),
		},
		HTTP: HTTPConfig{
			Addr:           getEnv("HTTP_ADDR", ":8081"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Maintenance: MaintenanceConfig{
			Interval: getDurationEnv("MAINTENANCE_INTERVAL", 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   getEnv("LOG_FILE", "nextstop.log"),
			DiscordURL: getEnv("LOG_ALERT_WEBHOOK_URL", ""),
		},
	}

	if cfg.Database.DSN == "" {
		switch cfg.Database.Driver {
		case "sqlite":
			cfg.Database.DSN = getEnv("SQLITE_DATABASE", "data/nextstop.db")
		case "postgres":
			cfg.Database.DSN = cfg.Database.ConnectionString()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.GTFSRealtime.PollingInterval <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}
	if c.GTFSStatic.StoreURL == "" && c.GTFSStatic.StoreDir == "" {
		return fmt.Errorf("one of STATIC_STORE_URL or STATIC_STORE_DIR is required")
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
