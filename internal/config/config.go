package config

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// AMQPURL empty means the in-memory queue.
	AMQPURL string

	EmailProvider string
	EmailFrom     string
	ResendAPIKey  string
	ResendBaseURL string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string

	// AuthJWTSecret signs the auth provider's access tokens (HS256).
	AuthJWTSecret  string
	AuthAudience   string
	AuthIssuer     string
	MainAdminEmail string

	WebhookSecret  string
	PublicBaseURL  string
	AllowedOrigins []string
	LogLevel       slog.Level
	SchedulerSpec  string
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on OS environment variables")
	}

	cfg := &Config{
		HTTPAddr:        envString("HTTP_ADDR", ":8080"),
		DatabaseURL:     databaseURL(),
		MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		AMQPURL:         os.Getenv("AMQP_URL"),
		EmailProvider:   strings.ToLower(envString("EMAIL_PROVIDER", "resend")),
		EmailFrom:       os.Getenv("EMAIL_FROM"),
		ResendAPIKey:    os.Getenv("RESEND_API_KEY"),
		ResendBaseURL:   envString("RESEND_BASE_URL", "https://api.resend.com"),
		SMTPHost:        os.Getenv("SMTP_HOST"),
		SMTPPort:        envInt("SMTP_PORT", 587),
		SMTPUser:        os.Getenv("SMTP_USER"),
		SMTPPassword:    os.Getenv("SMTP_PASSWORD"),
		AuthJWTSecret:   os.Getenv("AUTH_JWT_SECRET"),
		AuthAudience:    envString("AUTH_AUDIENCE", "authenticated"),
		AuthIssuer:      os.Getenv("AUTH_ISSUER"),
		MainAdminEmail:  strings.ToLower(strings.TrimSpace(os.Getenv("MAIN_ADMIN_EMAIL"))),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
		PublicBaseURL:   strings.TrimRight(envString("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		AllowedOrigins:  envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:        envLevel("LOG_LEVEL", slog.LevelInfo),
		SchedulerSpec:   envString("SCHEDULER_SPEC", "@every 1m"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL or DB_HOST/DB_USER/DB_NAME is required")
	}
	if cfg.MainAdminEmail == "" {
		return nil, errors.New("MAIN_ADMIN_EMAIL is required")
	}
	switch cfg.EmailProvider {
	case "resend", "smtp":
	default:
		return nil, fmt.Errorf("unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
	return cfg, nil
}

// databaseURL prefers DATABASE_URL and falls back to the DB_* parts.
func databaseURL() string {
	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u
	}
	host, user, name := os.Getenv("DB_HOST"), os.Getenv("DB_USER"), os.Getenv("DB_NAME")
	if host == "" || user == "" || name == "" {
		return ""
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, envString("DB_PORT", "5432"), user, os.Getenv("DB_PASSWORD"), name, envString("DB_SSLMODE", "disable"))
}

func envString(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name)))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(name)))
	if err != nil {
		return fallback
	}
	return v
}

func envList(name string, fallback []string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(name), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func envLevel(name string, fallback slog.Level) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(os.Getenv(name)))); err != nil {
		return fallback
	}
	return l
}
