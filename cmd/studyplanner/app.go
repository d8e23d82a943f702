package main

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"study-planner/internal/api"
	"study-planner/internal/bot"
	"study-planner/internal/calendar"
	"study-planner/internal/chat"
	"study-planner/internal/config"
	"study-planner/internal/contextstore"
	"study-planner/internal/coordinator"
	"study-planner/internal/embedding"
	"study-planner/internal/extraction"
	"study-planner/internal/llm"
	"study-planner/internal/logging"
	"study-planner/internal/notify"
	"study-planner/internal/planner"
	"study-planner/internal/repository"
	"study-planner/internal/service"
	"study-planner/internal/tools"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg config.Config
	log *zap.SugaredLogger
	db  *gorm.DB
	rdb *redis.Client

	users     *repository.UserRepository
	taskSvc   *service.TaskService
	reminders *service.ReminderService
	coord     *coordinator.Coordinator
	batch     *service.BatchService
	telegram  *tgbotapi.BotAPI
}

// newApp wires the planner. withTelegram authorizes the bot token when one
// is configured, so Telegram delivery works for serve and jobs.
func newApp(ctx context.Context, withTelegram bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(cfg.DatabaseURL, repository.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	a := &app{cfg: cfg, log: log, db: db}

	embedder, err := a.embedder(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	gateway, err := a.gateway(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	if withTelegram && cfg.TelegramToken != "" {
		a.telegram, err = bot.NewAPI(cfg.TelegramToken)
		if err != nil {
			a.Close()
			return nil, err
		}
		log.Infow("bot authorized", "account", a.telegram.Self.UserName)
	}

	a.users = repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	planRepo := repository.NewPlanRepository(db)
	store := contextstore.New(repository.NewContextRepository(db), embedder, log.Named("context"))
	cal := calendar.NewDBSource(repository.NewEventRepository(db), loc)
	notifier := a.notifier()

	a.taskSvc = service.NewTaskService(taskRepo, a.users, store, notifier, log.Named("tasks"))
	a.reminders = service.NewReminderService(taskRepo)
	a.coord = coordinator.New(coordinator.Deps{
		Extractor: extraction.New(gateway, log.Named("extraction")),
		Planner:   planner.New(gateway, log.Named("planner")),
		Responder: chat.NewResponder(gateway, log.Named("chat")),
		Store:     store,
		Tools:     tools.NewServer(a.taskSvc, store, cal),
		Tasks:     a.taskSvc,
		Plans:     planRepo,
		Users:     a.users,
		Documents: repository.NewDocumentRepository(db),
		Calendar:  cal,
		Location:  loc,
		Logger:    log.Named("coordinator"),
	})
	a.batch = service.NewBatchService(a.users, taskRepo, a.coord, store, notifier, log.Named("batch"))

	log.Infow("planner ready",
		"embedder", embedder.Name(),
		"vector_sql", repository.VectorSQLEnabled(),
		"telegram", a.telegram != nil,
	)
	return a, nil
}

func (a *app) embedder(ctx context.Context) (embedding.Embedder, error) {
	var base embedding.Embedder = embedding.NewHashEmbedder(0)
	if a.cfg.GeminiAPIKey != "" {
		e, err := embedding.NewGenAIEmbedder(ctx, a.cfg.GeminiAPIKey, a.cfg.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
		base = e
	} else {
		a.log.Warn("GEMINI_API_KEY not set, using local hash embeddings")
	}

	if a.cfg.RedisAddr == "" {
		return base, nil
	}
	rdb, err := embedding.NewRedisClient(embedding.RedisConfig{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err != nil {
		a.log.Warnw("embedding cache disabled", "addr", a.cfg.RedisAddr, "error", err)
		return base, nil
	}
	a.rdb = rdb
	return embedding.NewCachedEmbedder(base, rdb, a.cfg.EmbeddingCacheTTL, a.log.Named("embedding")), nil
}

func (a *app) gateway(ctx context.Context) (*llm.Gateway, error) {
	opts := llm.GatewayOptions{Timeout: a.cfg.LLMTimeout, Logger: a.log.Named("llm")}
	if a.cfg.GeminiAPIKey != "" {
		p, err := llm.NewGeminiProvider(ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		opts.Fast = p
	}
	if a.cfg.OpenAIAPIKey != "" {
		p, err := llm.NewOpenAIProvider(a.cfg.OpenAIAPIKey, a.cfg.OpenAIModel, a.cfg.OpenAIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		opts.Reasoning = p
	}
	if opts.Fast == nil && opts.Reasoning == nil {
		a.log.Warn("no LLM provider configured, model-backed features will degrade")
	}
	return llm.NewGateway(opts), nil
}

func (a *app) notifier() notify.Notifier {
	var out notify.Multi
	if a.cfg.WebhookURL != "" {
		out = append(out, notify.NewWebhookNotifier(a.cfg.WebhookURL, a.log.Named("webhook")))
	}
	if a.telegram != nil {
		out = append(out, notify.NewTelegramNotifier(a.telegram, a.log.Named("telegram")))
	}
	if len(out) == 0 {
		return notify.Nop{}
	}
	return out
}

func (a *app) httpServer() *api.Server {
	return api.New(api.Options{
		Addr:        a.cfg.HTTPAddr,
		Coordinator: a.coord,
		Tasks:       a.taskSvc,
		Logger:      a.log.Named("http"),
		Production:  a.cfg.IsProduction(),
	})
}

func (a *app) bot() *bot.Bot {
	return bot.New(a.telegram, bot.Deps{
		Users:     a.users,
		Tasks:     a.taskSvc,
		Reminders: a.reminders,
		Assistant: a.coord,
		Logger:    a.log.Named("bot"),
	})
}

func (a *app) jobSchedule() service.JobSchedule {
	return service.JobSchedule{
		DailyPlanAt:   a.cfg.DailyPlanTime,
		ReminderEvery: a.cfg.ReminderInterval,
		SyncEvery:     a.cfg.ContextSyncInterval,
	}
}

func (a *app) Close() {
	if a.taskSvc != nil {
		a.taskSvc.Wait()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.log.Sync()
}
