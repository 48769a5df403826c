package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all the configuration for the application.
type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"production"`
	HTTPServer `yaml:"http_server"`
	Database   `yaml:"database"`
	Cache      `yaml:"cache"`
	Analytics  `yaml:"analytics"`
	Resolver   `yaml:"resolver"`
}

// HTTPServer holds HTTP server specific configuration.
type HTTPServer struct {
	Port         int           `yaml:"port" env:"HTTP_SERVER_PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

// Database holds PostgreSQL connection configuration.
type Database struct {
	Host            string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port            int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User            string `yaml:"user" env:"DB_USER" env-default:"snaplink"`
	Password        string `yaml:"password" env:"DB_PASSWORD" env-default:""`
	DBName          string `yaml:"dbname" env:"DB_NAME" env-default:"snaplink"`
	SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	Timezone        string `yaml:"timezone" env:"DB_TIMEZONE" env-default:"UTC"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"50"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"1h"`
	AutoMigrate     bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`
}

// Cache holds link cache configuration.
type Cache struct {
	Capacity int           `yaml:"capacity" env:"CACHE_CAPACITY" env-default:"10000"`
	TTL      time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"1h"`
}

// Analytics holds click recording pipeline configuration.
type Analytics struct {
	WorkerCount         int           `yaml:"worker_count" env:"ANALYTICS_WORKERS" env-default:"3"`
	BufferSize          int           `yaml:"buffer_size" env:"ANALYTICS_BUFFER_SIZE" env-default:"1000"`
	MaxBatchSize        int           `yaml:"max_batch_size" env:"ANALYTICS_MAX_BATCH_SIZE" env-default:"50"`
	BatchTimeout        time.Duration `yaml:"batch_timeout" env:"ANALYTICS_BATCH_TIMEOUT" env-default:"5s"`
	AggregationInterval time.Duration `yaml:"aggregation_interval" env:"ANALYTICS_AGGREGATION_INTERVAL" env-default:"1h"`
	AggregationWindow   time.Duration `yaml:"aggregation_window" env:"ANALYTICS_AGGREGATION_WINDOW" env-default:"48h"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout" env:"ANALYTICS_SHUTDOWN_TIMEOUT" env-default:"30s"`
	RegexesPath         string        `yaml:"regexes_path" env:"UA_REGEXES_PATH" env-default:""`
}

// Resolver holds resolution service configuration.
type Resolver struct {
	BaseURL       string        `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8080"`
	KeyLength     int           `yaml:"key_length" env:"KEY_LENGTH" env-default:"7"`
	MaxListLimit  int           `yaml:"max_list_limit" env:"MAX_LIST_LIMIT" env-default:"100"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"10m"`
	RedirectCode  int           `yaml:"redirect_code" env:"REDIRECT_CODE" env-default:"302"`
}

// MustLoad loads the application configuration.
func MustLoad() *Config {
	// Try to load .env file (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment variables")
	}

	var cfg Config

	// Check if config file path is specified
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/local.yml" // default path
	}

	// Try to load config file
	if _, err := os.Stat(configPath); err == nil {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			log.Fatalf("cannot read config: %s", err)
		}
	} else {
		// If config file doesn't exist, use environment variables only
		log.Println("Config file not found, using environment variables only")
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("cannot read config from environment: %s", err)
		}
	}

	return &cfg
}
