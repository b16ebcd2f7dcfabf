package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

const defaultSweeperSchedule = "@every 1m"

// DefaultMeetingProviders хосты, на которые разрешены ссылки встреч
var DefaultMeetingProviders = model.DefaultMeetingProviders

type Config struct {
	DBDSN             string
	Environment       string
	LogLevel          string
	SecretKey         string
	BaseURL           string
	AdminPassword     string
	TestMode          bool
	EmailVerification bool
	MailServer        string
	MailPort          int
	MailUsername      string
	MailPassword      string
	MailFrom          string
	TelegramToken     string
	RedisAddr         string
	AMQPURL           string
	AMQPExchange      string
	SweeperSchedule   string
	PolicyFile        string
	MigrationsEnabled bool
	Policy            Policy
}

// Policy параметры предметной области из YAML-файла (POLICY_FILE)
type Policy struct {
	WorkingHours     map[string]DayHours `yaml:"workingHours"`
	MeetingProviders []string            `yaml:"meetingProviders"`
	CommonTimezones  []string            `yaml:"commonTimezones"`
	MaxBookingDays   int                 `yaml:"maxBookingDays"`
}

type DayHours struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		DBDSN:             os.Getenv("DB_DSN"),
		Environment:       normalizeEnv(getEnv("ENV", "development")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SecretKey:         os.Getenv("SECRET_KEY"),
		BaseURL:           strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		TestMode:          getEnvBool("TEST_MODE", false),
		EmailVerification: getEnvBool("EMAIL_VERIFICATION", false),
		MailServer:        os.Getenv("MAIL_SERVER"),
		MailPort:          getEnvInt("MAIL_PORT", 587),
		MailUsername:      os.Getenv("MAIL_USERNAME"),
		MailPassword:      os.Getenv("MAIL_PASSWORD"),
		MailFrom:          os.Getenv("MAIL_FROM"),
		TelegramToken:     os.Getenv("TELEGRAM_TOKEN"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		AMQPURL:           os.Getenv("AMQP_URL"),
		AMQPExchange:      os.Getenv("AMQP_EXCHANGE"),
		SweeperSchedule:   getEnv("SWEEPER_SCHEDULE", defaultSweeperSchedule),
		PolicyFile:        os.Getenv("POLICY_FILE"),
		MigrationsEnabled: getEnvBool("MIGRATIONS_ENABLED", true),
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.SecretKey == "" {
		if cfg.Environment == "production" {
			return nil, fmt.Errorf("SECRET_KEY is required in production")
		}
		cfg.SecretKey = "dev-secret"
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.MailUsername
	}

	if cfg.PolicyFile != "" {
		policy, err := LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Policy = policy
	}

	return cfg, nil
}

// LoadPolicy читает YAML с рабочими часами и списками провайдеров/зон
func LoadPolicy(path string) (Policy, error) {
	var p Policy
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse policy: %w", err)
	}
	if _, err := p.Hours(); err != nil {
		return p, err
	}
	return p, nil
}

// MailEnabled почта отправляется только при заданных сервере и учётных данных
func (c *Config) MailEnabled() bool {
	return c.MailServer != "" && c.MailUsername != "" && c.MailPassword != ""
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Hours рабочие часы: дни из файла заменяют значения по умолчанию
func (p Policy) Hours() (model.WorkingHours, error) {
	hours := model.DefaultWorkingHours()
	for name, h := range p.WorkingHours {
		day, ok := weekdays[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("policy: unknown weekday %q", name)
		}
		if h.Start == "" && h.End == "" {
			delete(hours, day)
			continue
		}
		start, err := model.ParseClockTime(h.Start)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		end, err := model.ParseClockTime(h.End)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		if end <= start {
			return nil, fmt.Errorf("policy %s: end %s is not after start %s", name, end, start)
		}
		hours[day] = model.DayHours{Start: start, End: end}
	}
	return hours, nil
}

// Providers список разрешённых хостов встреч
func (p Policy) Providers() []string {
	if len(p.MeetingProviders) == 0 {
		return DefaultMeetingProviders
	}
	return p.MeetingProviders
}

// BookingHorizon насколько далеко вперёд можно бронировать
func (p Policy) BookingHorizon() time.Duration {
	if p.MaxBookingDays <= 0 {
		return 365 * 24 * time.Hour
	}
	return time.Duration(p.MaxBookingDays) * 24 * time.Hour
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
