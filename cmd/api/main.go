package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"learner-retention/internal/adapters/advisor"
	"learner-retention/internal/adapters/channel"
	"learner-retention/internal/adapters/repo"
	"learner-retention/internal/domain"
	"learner-retention/internal/infra/cache"
	"learner-retention/internal/infra/config"
	"learner-retention/internal/infra/db"
	httpinfra "learner-retention/internal/infra/http"
	applog "learner-retention/internal/infra/log"
	"learner-retention/internal/infra/metrics"
	"learner-retention/internal/infra/openai"
	"learner-retention/internal/infra/ratelimit"
	"learner-retention/internal/usecase/notify"
	"learner-retention/internal/usecase/risk"
	"learner-retention/internal/usecase/snapshot"
)

const manualLockTTL = 10 * time.Minute

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
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
		riskAdvisor = advisor.NewDisabled()
	}

	riskService := risk.NewService(
		repoAdapter, repoAdapter, repoAdapter,
		riskAdvisor, ratelimit.PerMinute(cfg.Advisor.RatePerMin),
		cfg.Advisor.Timeout, cfg.Jobs.ActivityWindow,
		logger.With().Str("component", "risk").Logger(),
	)
	snapshotService := snapshot.NewService(
		riskService, repoAdapter, repoAdapter, riskAdvisor,
		logger.With().Str("component", "snapshot").Logger(),
	)
	// Ручной обход доставляет напрямую, без очереди.
	notifyService := notify.NewService(
		repoAdapter, repoAdapter, repoAdapter,
		channel.NewEmail(channel.EmailConfig{BaseURL: cfg.Email.BaseURL, APIKey: cfg.Email.APIKey, From: cfg.Email.From, Timeout: cfg.Email.Timeout}),
		channel.NewSMS(channel.SMSConfig{BaseURL: cfg.SMS.BaseURL, APIKey: cfg.SMS.APIKey, Sender: cfg.SMS.Sender, Timeout: cfg.SMS.Timeout}),
		nil,
		logger.With().Str("component", "notify").Logger(),
	)

	server := httpinfra.NewServer(logger)
	r := server.Router

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Group(func(admin chi.Router) {
		admin.Use(httpinfra.AdminAuthMiddleware(cfg.AdminToken))

		admin.Get("/api/v1/snapshots/latest", func(w http.ResponseWriter, req *http.Request) {
			snaps, err := repoAdapter.ListSnapshots(req.Context(), time.Now().UTC().AddDate(0, 0, -1))
			if err != nil || len(snaps) == 0 {
				writeError(w, http.StatusNotFound, "снимок за сегодня отсутствует")
				return
			}
			writeJSON(w, snaps[0])
		})

		admin.Get("/api/v1/snapshots", func(w http.ResponseWriter, req *http.Request) {
			days := 30
			if raw := req.URL.Query().Get("days"); raw != "" {
				parsed, err := strconv.Atoi(raw)
				if err != nil || parsed <= 0 {
					writeError(w, http.StatusBadRequest, "days должен быть положительным числом")
					return
				}
				days = parsed
			}
			snaps, err := repoAdapter.ListSnapshots(req.Context(), time.Now().UTC().AddDate(0, 0, -days))
			if err != nil {
				writeError(w, http.StatusInternalServerError, "не удалось прочитать снимки")
				return
			}
			writeJSON(w, map[string]any{"snapshots": snaps})
		})

		admin.Get("/api/v1/learners/{id}/risk", func(w http.ResponseWriter, req *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "некорректный идентификатор")
				return
			}
			assessment, err := riskService.AssessLearner(req.Context(), id)
			if err != nil {
				if errors.Is(err, domain.ErrLearnerNotFound) {
					writeError(w, http.StatusNotFound, "обучающийся не найден")
					return
				}
				writeError(w, http.StatusInternalServerError, "оценка риска не удалась")
				return
			}
			writeJSON(w, map[string]any{
				"learner_id":      assessment.LearnerID,
				"risk_score":      assessment.Score,
				"risk_tier":       assessment.Tier,
				"factors":         assessment.Factors,
				"recommendations": assessment.Recommendations,
				"confidence":      assessment.Confidence,
				"computed_at":     assessment.ComputedAt,
			})
		})

		admin.Post("/api/v1/jobs/{job}/run", func(w http.ResponseWriter, req *http.Request) {
			job := chi.URLParam(req, "job")
			var run func(context.Context) error
			switch job {
			case domain.JobRiskRecompute:
				run = func(ctx context.Context) error {
					_, err := riskService.RecomputeAll(ctx)
					return err
				}
			case domain.JobDailySnapshot:
				run = func(ctx context.Context) error {
					_, err := snapshotService.BuildToday(ctx)
					return err
				}
			case domain.JobNotifySweep:
				run = func(ctx context.Context) error {
					_, err := notifyService.SweepAll(ctx)
					return err
				}
			default:
				writeError(w, http.StatusNotFound, "неизвестная задача")
				return
			}

			// Блокировка защищает от двойного запуска кнопкой и кроном.
			go func() {
				key := fmt.Sprintf("jobs:manual:%s:%s", job, time.Now().UTC().Format("2006-01-02T15"))
				if err := jobCache.Once(key, manualLockTTL, func() error { return run(ctx) }); err != nil {
					log.Error().Err(err).Str("job", job).Msg("api: ручной запуск завершился с ошибкой")
				}
			}()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted", "job": job})
		})
	})

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("api: сервер остановился с ошибкой")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: ошибка остановки сервера")
	}
	logger.Info().Msg("api: остановлен")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("api: не удалось записать ответ")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(httpinfra.ErrorResponse{Error: msg})
}
