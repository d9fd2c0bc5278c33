package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-roleplay/internal/ai"
	"github.com/suPer8Hu/ai-roleplay/internal/apilog"
	"github.com/suPer8Hu/ai-roleplay/internal/chat"
	"github.com/suPer8Hu/ai-roleplay/internal/config"
	"github.com/suPer8Hu/ai-roleplay/internal/db"
	"github.com/suPer8Hu/ai-roleplay/internal/email"
	"github.com/suPer8Hu/ai-roleplay/internal/httpapi"
	"github.com/suPer8Hu/ai-roleplay/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-roleplay/internal/knowledge"
	"github.com/suPer8Hu/ai-roleplay/internal/logger"
	"github.com/suPer8Hu/ai-roleplay/internal/memory"
	"github.com/suPer8Hu/ai-roleplay/internal/models"
	"github.com/suPer8Hu/ai-roleplay/internal/role"
	"github.com/suPer8Hu/ai-roleplay/internal/speech"
	"github.com/suPer8Hu/ai-roleplay/internal/store/objectstore"
	"github.com/suPer8Hu/ai-roleplay/internal/store/rabbitmq"
	"github.com/suPer8Hu/ai-roleplay/internal/store/redisstore"
	"github.com/suPer8Hu/ai-roleplay/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	if err := db.Migrate(gdb,
		&models.User{},
		&role.Role{},
		&chat.Session{},
		&chat.Message{},
		&knowledge.Snippet{},
		&chat.AudioFile{},
		&chat.Feedback{},
		&apilog.APILog{},
	); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	checks := []handlers.HealthCheck{{Name: "database", Check: pingDB(gdb)}}

	// redis is optional: without it login lockout is off and memory reads from the database
	var (
		limiter  users.LoginLimiter
		ctxStore memory.ContextStore
	)
	if cfg.RedisAddr != "" {
		rdb := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		if err := rdb.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis not reachable at startup")
		}
		limiter = rdb
		ctxStore = rdb
		checks = append(checks, handlers.HealthCheck{Name: "redis", Check: rdb.Ping})
	} else {
		log.Warn().Msg("REDIS_ADDR not set, login lockout disabled")
	}

	var rec apilog.Recorder = apilog.NewDBRecorder(gdb)
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatal().Err(err).Msg("connect rabbitmq")
		}
		defer pub.Close()
		rec = apilog.NewQueueRecorder(pub)
		log.Info().Str("queue", cfg.RabbitQueue).Msg("api logs published to queue")
	}
	tracker := apilog.NewTracker(rec, log)

	registry := ai.NewRegistry()
	ai.RegisterDefaults(registry, cfg)
	if !registry.Has(cfg.AIProvider) {
		log.Fatal().Str("provider", cfg.AIProvider).Msg("unsupported AI_PROVIDER")
	}

	var oa *openai.Client
	if cfg.OpenAIAPIKey != "" {
		oa = ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.SpeechTimeout())
	}
	stt, err := speech.NewTranscriber(cfg, oa)
	if err != nil {
		log.Fatal().Err(err).Msg("init speech-to-text")
	}
	tts, err := speech.NewSynthesizer(cfg, oa)
	if err != nil {
		log.Fatal().Err(err).Msg("init text-to-speech")
	}

	objects, err := objectstore.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init object storage")
	}
	checks = append(checks, handlers.HealthCheck{Name: "storage", Check: objects.Health})
	var mediaDir, mediaURL string
	if local, ok := objects.(*objectstore.LocalStore); ok {
		mediaDir = local.BasePath()
		mediaURL = cfg.StorageBaseURL
	}

	roles := role.NewService(role.NewRepo(gdb), role.DefaultTemplates())

	snippets := knowledge.NewRepo(gdb)
	var (
		retriever knowledge.Retriever = knowledge.NewLexicalRetriever(snippets)
		indexer   knowledge.Indexer
	)
	if cfg.RAGStrategy == "vector" {
		if oa == nil {
			log.Fatal().Msg("RAG_STRATEGY=vector requires OPENAI_API_KEY")
		}
		idx, err := knowledge.NewQdrantIndex(ctx, knowledge.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dim:        cfg.EmbeddingDim,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("init qdrant")
		}
		defer idx.Close()
		vr := knowledge.NewVectorRetriever(snippets, tracker.TrackEmbedder(ai.NewOpenAIEmbedder(oa, cfg.EmbeddingModel)), idx)
		retriever, indexer = vr, vr
	}
	log.Info().Str("strategy", cfg.RAGStrategy).Msg("knowledge retrieval ready")
	know := knowledge.NewService(snippets, roles, retriever, indexer, knowledge.Options{
		TopK:      cfg.RAGTopK,
		Threshold: cfg.RAGThreshold,
	}, log.With().Str("component", "knowledge").Logger())

	var mailer email.Sender
	smtpCfg := email.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}
	if smtpCfg.Enabled() {
		mailer = email.NewSMTPSender(smtpCfg)
	}
	userSvc := users.NewService(users.NewRepo(gdb), limiter, mailer, users.Options{
		JWTSecret:        cfg.JWTSecret,
		TokenTTL:         cfg.AccessTokenTTL(),
		LoginMaxAttempts: cfg.LoginMaxAttempts,
		LoginLockout:     cfg.LoginLockout(),
	}, log.With().Str("component", "users").Logger())

	chatLog := log.With().Str("component", "chat").Logger()
	chatSvc := chat.NewService(chat.Deps{
		Repo:      chat.NewRepo(gdb),
		Roles:     roles,
		Knowledge: know,
		Registry:  registry,
		Memory:    memory.New(ctxStore, cfg.ChatContextWindowSize, memory.DefaultTTL, chatLog),
		STT:       stt,
		TTS:       tts,
		Objects:   objects,
		Tracker:   tracker,
		Log:       chatLog,
	}, chat.Options{
		Provider:  cfg.AIProvider,
		TopK:      cfg.RAGTopK,
		Threshold: cfg.RAGThreshold,
	})

	r := httpapi.NewRouter(httpapi.Options{
		Cfg: cfg,
		Log: log,
		Handlers: handlers.Deps{
			Users:               userSvc,
			Roles:               roles,
			Knowledge:           know,
			Chat:                chatSvc,
			Checks:              checks,
			Log:                 log,
			MaxAudioUploadBytes: int64(cfg.MaxAudioUploadMB) << 20,
		},
		MediaDir: mediaDir,
		MediaURL: mediaURL,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("ai_provider", cfg.AIProvider).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}

func pingDB(gdb *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
