package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"learner-retention/internal/adapters/channel"
	"learner-retention/internal/adapters/repo"
	"learner-retention/internal/domain"
	"learner-retention/internal/infra/config"
	"learner-retention/internal/infra/db"
	applog "learner-retention/internal/infra/log"
	"learner-retention/internal/infra/metrics"
	"learner-retention/internal/infra/queue"
	"learner-retention/internal/usecase/notify"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("notifier: нет подключения к БД")
	}
	defer pool.Close()

	var notifyQueue domain.NotificationQueue
	switch cfg.Queues.Backend {
	case "rabbit":
		amqpQueue, err := queue.NewAMQPNotificationQueue(cfg.Queues.AMQPURL, cfg.Queues.Notification)
		if err != nil {
			log.Fatal().Err(err).Msg("notifier: нет подключения к RabbitMQ")
		}
		defer amqpQueue.Close()
		notifyQueue = amqpQueue
	default:
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		notifyQueue = queue.NewRedisNotificationQueue(redisClient, cfg.Queues.Notification)
	}

	repoAdapter := repo.NewPostgres(pool)
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

	// Потребитель доставляет напрямую, очередь ему не передаётся.
	notifyService := notify.NewService(
		repoAdapter, repoAdapter, repoAdapter,
		emailClient, smsClient, nil,
		logger.With().Str("component", "notify").Logger(),
	)

	metrics.StartServer(ctx, logger, fmt.Sprintf(":%d", cfg.Port))
	logger.Info().Str("queue", cfg.Queues.Notification).Msg("notifier: запущен")

	for {
		job, err := notifyQueue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error().Err(err).Msg("notifier: ошибка чтения очереди")
			continue
		}
		// Право на отправку перепроверяется здесь: задача могла
		// устареть, пока лежала в очереди.
		sent, err := notifyService.DispatchForLearner(ctx, job.LearnerID)
		switch {
		case err != nil:
			logger.Error().Err(err).Int64("learner", job.LearnerID).Str("job", job.JobID).Msg("notifier: доставка не удалась")
		case sent == nil:
			logger.Debug().Int64("learner", job.LearnerID).Str("job", job.JobID).Msg("notifier: уведомление не положено")
		default:
			logger.Info().Int64("learner", job.LearnerID).Str("job", job.JobID).Str("status", sent.Status).Msg("notifier: уведомление доставлено")
		}
	}
	logger.Info().Msg("notifier: остановлен")
}
