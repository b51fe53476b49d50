package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"learner-retention/internal/adapters/advisor"
	"learner-retention/internal/adapters/channel"
	"learner-retention/internal/adapters/repo"
	"learner-retention/internal/domain"
	"learner-retention/internal/infra/cache"
	"learner-retention/internal/infra/config"
	"learner-retention/internal/infra/db"
	applog "learner-retention/internal/infra/log"
	"learner-retention/internal/infra/metrics"
	"learner-retention/internal/infra/openai"
	"learner-retention/internal/infra/queue"
	"learner-retention/internal/infra/ratelimit"
	"learner-retention/internal/usecase/notify"
	"learner-retention/internal/usecase/risk"
	"learner-retention/internal/usecase/snapshot"
)

// lockTTL удерживает блокировку цикла до конца суток, чтобы повторная
// доставка расписания не запускала задачу дважды.
const lockTTL = 20 * time.Hour

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	jobCache := cache.NewRedis(redisClient)

	repoAdapter := repo.NewPostgres(pool)

	var riskAdvisor domain.RiskAdvisor
	if cfg.Advisor.APIKey != "" {
		client := openai.NewClient(cfg.Advisor.APIKey, cfg.Advisor.BaseURL, cfg.Advisor.Timeout)
		riskAdvisor = advisor.NewLLM(client, cfg.Advisor.Model, cfg.Advisor.Timeout)
	} else {
		logger.Warn().Msg("scheduler: ключ консультанта не задан, работаем на эвристике")
		riskAdvisor = advisor.NewDisabled()
	}
	pacer := ratelimit.PerMinute(cfg.Advisor.RatePerMin)

	riskService := risk.NewService(
		repoAdapter, repoAdapter, repoAdapter,
		riskAdvisor, pacer,
		cfg.Advisor.Timeout, cfg.Jobs.ActivityWindow,
		logger.With().Str("component", "risk").Logger(),
	)
	snapshotService := snapshot.NewService(
		riskService, repoAdapter, repoAdapter, riskAdvisor,
		logger.With().Str("component", "snapshot").Logger(),
	)

	var notifyQueue domain.NotificationQueue
	switch cfg.Queues.Backend {
	case "rabbit":
		amqpQueue, err := queue.NewAMQPNotificationQueue(cfg.Queues.AMQPURL, cfg.Queues.Notification)
		if err != nil {
			log.Fatal().Err(err).Msg("scheduler: нет подключения к RabbitMQ")
		}
		defer amqpQueue.Close()
		notifyQueue = amqpQueue
	case "redis":
		notifyQueue = queue.NewRedisNotificationQueue(redisClient, cfg.Queues.Notification)
	default:
		// Без очереди обход доставляет напрямую.
		notifyQueue = nil
	}

	emailClient := channel.NewEmail(channel.EmailConfig{
		BaseURL: cfg.Email.BaseURL,
		APIKey:  cfg.Email.APIKey,
		From:    cfg.Email.From,
		Timeout: cfg.Email.Timeout,
	})
	smsClient := channel.NewSMS(channel.SMSConfig{
		BaseURL: cfg.SMS.BaseURL,
		APIKey:  cfg.SMS.APIKey,
		Sender:  cfg.SMS.Sender,
		Timeout: cfg.SMS.Timeout,
	})
	notifyService := notify.NewService(
		repoAdapter, repoAdapter, repoAdapter,
		emailClient, smsClient, notifyQueue,
		logger.With().Str("component", "notify").Logger(),
	)

	metrics.StartServer(ctx, logger, fmt.Sprintf(":%d", cfg.Port))

	scheduler := cron.New(cron.WithSeconds())

	if _, err := scheduler.AddFunc(cfg.Jobs.DailyCron, func() {
		runOnce(jobCache, domain.JobDailySnapshot, func() error {
			// Пересчёт риска выполняется внутри построения снимка,
			// строго перед агрегацией.
			_, err := snapshotService.BuildToday(ctx)
			return err
		})
	}); err != nil {
		log.Fatal().Err(err).Msg("scheduler: некорректное расписание дневного цикла")
	}

	if _, err := scheduler.AddFunc(cfg.Jobs.SweepCron, func() {
		runOnce(jobCache, domain.JobNotifySweep, func() error {
			_, err := notifyService.SweepAll(ctx)
			return err
		})
	}); err != nil {
		log.Fatal().Err(err).Msg("scheduler: некорректное расписание обхода уведомлений")
	}

	scheduler.Start()
	logger.Info().
		Str("daily", cfg.Jobs.DailyCron).
		Str("sweep", cfg.Jobs.SweepCron).
		Msg("scheduler: расписание запущено")

	<-ctx.Done()
	cronCtx := scheduler.Stop()
	<-cronCtx.Done()
	logger.Info().Msg("scheduler: остановлен")
}

// runOnce выполняет задачу не чаще раза в сутки: блокировка снимается
// при ошибке, поэтому упавший цикл можно повторить.
func runOnce(jobCache domain.Cache, job string, fn func() error) {
	key := fmt.Sprintf("jobs:%s:%s", job, time.Now().UTC().Format("2006-01-02"))
	if err := jobCache.Once(key, lockTTL, fn); err != nil {
		log.Error().Err(err).Str("job", job).Msg("scheduler: задача завершилась с ошибкой")
	}
}
