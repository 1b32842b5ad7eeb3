package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-video-cutter/config"
	"ai-video-cutter/internal/assembler"
	"ai-video-cutter/internal/conversation"
	"ai-video-cutter/internal/deps"
	"ai-video-cutter/internal/handler"
	"ai-video-cutter/internal/jobs"
	"ai-video-cutter/internal/media"
	"ai-video-cutter/internal/metrics"
	"ai-video-cutter/internal/proposal"
	"ai-video-cutter/internal/queue"
	"ai-video-cutter/internal/router"
	"ai-video-cutter/internal/service"
	"ai-video-cutter/internal/storage"
	"ai-video-cutter/internal/taskrunner"
	"ai-video-cutter/log"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and task workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log.InitLogger()
			defer log.GetLogger().Sync()

			created, err := config.LoadOrCreateConfig()
			if err != nil {
				log.GetLogger().Error("[Main] loading config failed", zap.Error(err))
				return err
			}
			if created {
				log.GetLogger().Info("[Main] default config written")
			}
			if err = config.CheckConfig(); err != nil {
				log.GetLogger().Error("[Main] invalid config", zap.Error(err))
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Conf)
		},
	}
}

func serve(ctx context.Context, conf config.Config) error {
	states := deps.ResolveDependencyInventory(mediaPaths(conf.Media))
	if err := deps.CheckDependency(states); err != nil {
		log.GetLogger().Error("[Main] media tools unavailable\n"+deps.FormatDependencyReport(states), zap.Error(err))
		return err
	}

	collector := metrics.New()

	roots, err := service.ResolveRoots(conf.App.UploadDir, conf.App.ProcessedDir)
	if err != nil {
		return fmt.Errorf("resolve storage roots: %w", err)
	}

	trackerOpts := []jobs.Option{jobs.WithMetrics(collector)}
	var store *storage.Store
	if conf.App.PersistTasks {
		store, err = storage.OpenDefault()
		if err != nil {
			return err
		}
		defer store.Close()
		trackerOpts = append(trackerOpts, jobs.WithPersister(store))
	}

	history, closeHistory, err := newHistoryStore(ctx, conf.Redis)
	if err != nil {
		return err
	}
	defer closeHistory()

	completer, err := service.NewChatCompleter(conf)
	if err != nil {
		return err
	}
	tool := media.NewTool(
		deps.Resolved(states, "ffmpeg", conf.Media.FfmpegPath),
		deps.Resolved(states, "ffprobe", conf.Media.FfprobePath),
		media.WithMetrics(collector),
	)

	svcDeps := service.Deps{
		Tracker:   jobs.NewTracker(trackerOpts...),
		History:   history,
		Sequencer: conversation.NewSequencer(),
		Proposer: proposal.NewEngine(completer,
			proposal.WithMetrics(collector),
			proposal.WithSystemPrompt(conf.Llm.SystemPrompt),
			proposal.WithHistoryLimit(conf.App.HistoryTurns),
			proposal.WithVideoAttachment(conf.Llm.AttachVideo),
		),
		Media:     tool,
		Assembler: assembler.New(tool, roots.Work),
		Metrics:   collector,
	}
	if store != nil {
		svcDeps.Videos = store
	}
	svc := service.NewService(svcDeps, service.Options{
		Roots:    roots,
		Timeouts: service.TimeoutsFrom(conf.Timeouts),
	})

	if store != nil {
		if err = restore(svc, store); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	switch conf.App.WorkerMode {
	case config.WorkerModeAsynq:
		q := queue.NewQueue(queue.QueueConfig{
			RedisAddr:     conf.Redis.Addr,
			RedisPassword: conf.Redis.Password,
			RedisDB:       conf.Redis.DB,
			Concurrency:   conf.App.Concurrency,
			TaskTimeout:   conf.Timeouts.Timeout("finalize") + time.Minute,
		})
		defer q.Close()
		svc.SetDispatcher(q)
		g.Go(func() error {
			return q.Run(gctx, svc.ExecuteIfReady)
		})
	default:
		runner := taskrunner.New(svc.Execute, taskrunner.Config{
			QueueSize:   conf.App.QueueSize,
			Concurrency: conf.App.Concurrency,
		}, collector)
		defer runner.Close()
		svc.SetDispatcher(runner)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	router.SetupRouter(r, handler.NewHandler(svc, conf.App.MaxUploadBytes(), conf.App.AllowedVideoExts), collector)

	srv := &http.Server{
		Addr:    conf.Server.Addr(),
		Handler: r,
	}
	g.Go(func() error {
		log.GetLogger().Info("[Main] http server listening",
			zap.String("addr", srv.Addr),
			zap.String("worker_mode", conf.App.WorkerMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		log.GetLogger().Info("[Main] shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// restore fails interrupted tasks and reloads the survivors.
func restore(svc *service.Service, store *storage.Store) error {
	stale, err := store.MarkStaleTasks(time.Now())
	if err != nil {
		log.GetLogger().Warn("[Main] marking stale tasks failed", zap.Error(err))
	} else if stale > 0 {
		log.GetLogger().Info("[Main] marked stale tasks as failed", zap.Int64("count", stale))
	}

	tasks, err := store.LoadTasks()
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	videos, err := store.ListVideos()
	if err != nil {
		return fmt.Errorf("load videos: %w", err)
	}
	svc.Restore(videos, tasks)
	log.GetLogger().Info("[Main] state restored", zap.Int("videos", len(videos)), zap.Int("tasks", len(tasks)))
	return nil
}

func newHistoryStore(ctx context.Context, conf config.Redis) (conversation.Store, func(), error) {
	if !conf.Enabled {
		return conversation.NewMemoryStore(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", conf.Addr, err)
	}
	log.GetLogger().Info("[Main] conversation history in redis", zap.String("addr", conf.Addr))
	return conversation.NewRedisStore(client, conf.HistoryTTL()), func() { _ = client.Close() }, nil
}
