package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	WebPort        string        `mapstructure:"WEB_PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	MongoURI       string        `mapstructure:"MONGODB_URI"`
	MongoDatabase  string        `mapstructure:"MONGODB_DATABASE"`
	StoreDriver    string        `mapstructure:"STORE_DRIVER"`
	IDPDriver      string        `mapstructure:"IDP_DRIVER"`
	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`
	IdentityDomain string        `mapstructure:"IDENTITY_DOMAIN"`
	StoreTimeout   time.Duration `mapstructure:"STORE_TIMEOUT"`
	LLMTimeout     time.Duration `mapstructure:"LLM_TIMEOUT"`
	GeminiAPIKey   string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel    string        `mapstructure:"GEMINI_MODEL"`
	GeminiEndpoint string        `mapstructure:"GEMINI_ENDPOINT"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
}

var keys = []string{
	"PORT", "WEB_PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MONGODB_URI", "MONGODB_DATABASE", "STORE_DRIVER", "IDP_DRIVER",
	"JWT_SECRET", "SESSION_TTL", "IDENTITY_DOMAIN", "STORE_TIMEOUT",
	"LLM_TIMEOUT", "GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_ENDPOINT",
	"CORS_ORIGINS",
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "50051")
	v.SetDefault("WEB_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "carebook")
	v.SetDefault("STORE_DRIVER", "mongo")
	v.SetDefault("IDP_DRIVER", "postgres")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("IDENTITY_DOMAIN", "healthcare.com")
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("LLM_TIMEOUT", "30s")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")

	for _, k := range keys {
		v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	return cfg, nil
}

// Validate checks the settings needed by the selected drivers.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.StoreDriver {
	case "mongo":
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for STORE_DRIVER=mongo"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.IDPDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for IDP_DRIVER=postgres"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown IDP_DRIVER %q", c.IDPDriver))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}
