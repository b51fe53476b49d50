package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AdminToken string `envconfig:"ADMIN_TOKEN"`

	Advisor struct {
		APIKey  string        `envconfig:"ADVISOR_API_KEY"`
		BaseURL string        `envconfig:"ADVISOR_BASE_URL"`
		Model   string        `envconfig:"ADVISOR_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"ADVISOR_TIMEOUT" default:"20s"`
		// RatePerMin — максимум обращений к консультанту в минуту.
		RatePerMin int `envconfig:"ADVISOR_RATE_PER_MIN" default:"30"`
	} `envconfig:""`

	Email struct {
		BaseURL string        `envconfig:"EMAIL_API_URL"`
		APIKey  string        `envconfig:"EMAIL_API_KEY"`
		From    string        `envconfig:"EMAIL_FROM" default:"support@learning.example"`
		Timeout time.Duration `envconfig:"EMAIL_TIMEOUT" default:"10s"`
	} `envconfig:""`

	SMS struct {
		BaseURL string        `envconfig:"SMS_API_URL"`
		APIKey  string        `envconfig:"SMS_API_KEY"`
		Sender  string        `envconfig:"SMS_SENDER" default:"LEARNING"`
		Timeout time.Duration `envconfig:"SMS_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Jobs struct {
		// DailyCron — расписание цикла "пересчёт риска + дневной снимок".
		DailyCron string `envconfig:"DAILY_CRON" default:"0 0 2 * * *"`
		// SweepCron — расписание пакетного обхода уведомлений.
		SweepCron string `envconfig:"SWEEP_CRON" default:"0 0 9 * * *"`
		// ActivityWindow — окно истории активности для метрик вовлечённости.
		ActivityWindow time.Duration `envconfig:"ACTIVITY_WINDOW" default:"2160h"`
	} `envconfig:""`

	Queues struct {
		Backend      string `envconfig:"QUEUE_BACKEND" default:"redis"`
		Notification string `envconfig:"NOTIFY_QUEUE_KEY" default:"notify_jobs"`
		AMQPURL      string `envconfig:"AMQP_URL"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
