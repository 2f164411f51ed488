package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile   string `envconfig:"LOG_FILE"`
	LogMaxAge int    `envconfig:"LOG_MAX_AGE_DAYS" default:"30"`

	// "today" and the hour-of-day slots are evaluated in this zone
	Timezone string `envconfig:"TIMEZONE" default:"America/Sao_Paulo"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"1"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME" default:"1h"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME" default:"15m"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD" default:"1m"`

	DeliveryInterval time.Duration `envconfig:"DELIVERY_INTERVAL" default:"60s"`
	HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`

	// Gesthor (scheduling backend)
	GesthorScheme   string `envconfig:"GESTHOR_SCHEME" default:"http"`
	GesthorBasePath string `envconfig:"GESTHOR_BASE_PATH" default:"/gthWS"`

	// Omniplus (messaging gateway)
	OmniplusScheme     string        `envconfig:"OMNIPLUS_SCHEME" default:"https"`
	OmniplusBasePath   string        `envconfig:"OMNIPLUS_BASE_PATH" default:"/api/v1"`
	GatewayRPS         float64       `envconfig:"GATEWAY_RPS" default:"5"`
	GatewayBurst       int           `envconfig:"GATEWAY_BURST" default:"10"`
	BreakerMaxFailures uint32        `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	BreakerTimeout     time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`

	AffirmativeValues []string `envconfig:"AFFIRMATIVE_VALUES" default:"sim"`
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	for i, v := range cfg.AffirmativeValues {
		cfg.AffirmativeValues[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return cfg
}

func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
