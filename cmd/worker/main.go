package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"rollcall/internal/clock"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/reaper"
	"rollcall/internal/score"
	"rollcall/internal/store"
	"rollcall/internal/token"
)

// The worker owns the background half of the service: it sweeps stale
// attendance tokens on a fixed interval and consumes check-in events to drop
// stale cached scoreboards.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received")
		cancel()
	}()

	zone, err := clock.LoadZone(cfg.Timezone)
	if err != nil {
		log.Fatalf("timezone: %v", err)
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:checkins")
	}

	tokenRepo := token.NewRepository(db.Client)
	cache := score.NewCache(redisClient.Client, cfg.ScoreCacheTTL)

	r := reaper.New(tokenRepo, zone, cfg.TokenTTL, cfg.ReapInterval)
	go r.Run(ctx)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	slog.Info("worker started", "reap_interval", cfg.ReapInterval.String())
	for msg := range messages {
		if msg.Type != queue.MsgCheckin {
			continue
		}

		classroomID, err := strconv.ParseInt(string(msg.Body), 10, 64)
		if err != nil {
			slog.Warn("malformed checkin event", "body", string(msg.Body))
			continue
		}
		if err := cache.Invalidate(ctx, classroomID); err != nil {
			slog.Warn("score cache invalidate failed", "classroom_id", classroomID, "error", err)
			continue
		}
		slog.Debug("score cache invalidated", "classroom_id", classroomID)
	}

	slog.Info("worker stopped")
}
