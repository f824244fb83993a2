package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/marketing-dashboard/internal/config"
	"github.com/unclebandit/marketing-dashboard/internal/db"
	"github.com/unclebandit/marketing-dashboard/internal/queue"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
	"github.com/unclebandit/marketing-dashboard/internal/service"
)

type eventSubscriber interface {
	Subscribe(q queue.Queue) error
}

type scheduler interface {
	Start() error
	Stop()
}

// run attaches the event consumer when a queue is given, starts the scheduler and blocks until ctx ends.
func run(ctx context.Context, q queue.Queue, events eventSubscriber, sched scheduler) error {
	if q != nil {
		if err := events.Subscribe(q); err != nil {
			return err
		}
	}
	if err := sched.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	sched.Stop()
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config: ", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, db.Options{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("database: ", err)
	}
	defer pool.Close()

	contactRepo := repository.NewContactRepository(pool)
	campaignRepo := repository.NewCampaignRepository(pool)
	logRepo := repository.NewCampaignLogRepository(pool)
	templateRepo := repository.NewTemplateRepository(pool)

	campaignService := service.NewCampaignService(campaignRepo, logRepo, contactRepo, templateRepo, logger)
	eventService := service.NewEventService(logRepo, campaignRepo, contactRepo, logger)

	// Webhook events only reach this process through RabbitMQ.
	var q queue.Queue
	if cfg.AMQPURL != "" {
		rmq, err := queue.NewRabbitMQ(cfg.AMQPURL, logger)
		if err != nil {
			log.Fatal("rabbitmq: ", err)
		}
		defer rmq.Close()
		q = rmq
	} else {
		log.Println("AMQP_URL not set, consuming no email events (the API applies them in-process)")
	}

	log.Println("worker running")
	if err := run(ctx, q, eventService, service.NewScheduler(campaignService, cfg.SchedulerSpec, logger)); err != nil {
		log.Fatal("worker: ", err)
	}
	log.Println("worker stopped")
}
