package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	ServerPort  int
	LogLevel    string

	DBDriver    string
	DatabaseURL string

	JWT      JWTSettings
	Password PasswordSettings

	KafkaBrokers []string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string
}

type JWTSettings struct {
	Secret               []byte
	TokenLifetime        time.Duration
	RefreshTokenLifetime time.Duration
}

type PasswordSettings struct {
	RequiredLength         int
	RequiredUniqueChars    int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
}

// LoadDotEnv is a no-op when the file is missing.
func LoadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil {
		log.Printf("Notice: %s file not found: %v. Using system environment variables", path, err)
	}
}

func Load() Config {
	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "eventbook"),
		ServerPort:  EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		DBDriver:    strings.ToLower(EnvDefault("DB_DRIVER", "sqlite")),
		DatabaseURL: EnvDefault("DATABASE_URL", "eventbook.db"),

		JWT: JWTSettings{
			Secret:               []byte(os.Getenv("JWT_SECRET")),
			TokenLifetime:        EnvDurationDefault("JWT_TOKEN_LIFETIME", 5*time.Minute),
			RefreshTokenLifetime: EnvDurationDefault("JWT_REFRESH_TOKEN_LIFETIME", 7*24*time.Hour),
		},

		Password: PasswordSettings{
			RequiredLength:         EnvIntDefault("PASSWORD_REQUIRED_LENGTH", 6),
			RequiredUniqueChars:    EnvIntDefault("PASSWORD_REQUIRED_UNIQUE_CHARS", 1),
			RequireDigit:           EnvBoolDefault("PASSWORD_REQUIRE_DIGIT", true),
			RequireLowercase:       EnvBoolDefault("PASSWORD_REQUIRE_LOWERCASE", true),
			RequireUppercase:       EnvBoolDefault("PASSWORD_REQUIRE_UPPERCASE", true),
			RequireNonAlphanumeric: EnvBoolDefault("PASSWORD_REQUIRE_NON_ALPHANUMERIC", true),
		},

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "page_elements"),
	}
}

// MustLoad is Load plus the checks the service cannot start without.
func MustLoad() Config {
	cfg := Load()

	MustNonEmptyBytes(cfg.JWT.Secret, "JWT_SECRET")
	MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	MustOneOf(cfg.DBDriver, "DB_DRIVER", "sqlite", "postgres", "pq")

	return cfg
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// EnvDurationDefault accepts Go durations ("15m") or plain seconds ("900").
func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
