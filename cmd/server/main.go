// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/marketing-dashboard/internal/auth"
	"github.com/unclebandit/marketing-dashboard/internal/config"
	"github.com/unclebandit/marketing-dashboard/internal/controller"
	"github.com/unclebandit/marketing-dashboard/internal/db"
	"github.com/unclebandit/marketing-dashboard/internal/email"
	"github.com/unclebandit/marketing-dashboard/internal/handler"
	"github.com/unclebandit/marketing-dashboard/internal/queue"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
	"github.com/unclebandit/marketing-dashboard/internal/service"
)

func emailProvider(cfg *config.Config) (email.Provider, error) {
	if cfg.EmailProvider == "smtp" {
		return email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword), nil
	}
	return email.NewResendClient(cfg.ResendAPIKey, cfg.ResendBaseURL)
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
	userRepo := repository.NewUserRepository(pool)
	dashboardRepo := repository.NewDashboardRepository(pool)

	contactService := service.NewContactService(contactRepo, logger)
	templateService := service.NewTemplateService(templateRepo, logger)
	campaignService := service.NewCampaignService(campaignRepo, logRepo, contactRepo, templateRepo, logger)
	provider, err := emailProvider(cfg)
	if err != nil {
		log.Fatal("email provider: ", err)
	}
	emailService := service.NewEmailService(provider, templateService, campaignRepo, logRepo, cfg.EmailFrom, cfg.PublicBaseURL, logger)
	accessService := service.NewAccessService(userRepo, cfg.MainAdminEmail, logger)
	dashboardService := service.NewDashboardService(dashboardRepo, logger)

	// Without a broker the API applies webhook events in-process; the worker only runs the scheduler.
	var events queue.Queue
	if cfg.AMQPURL != "" {
		rmq, err := queue.NewRabbitMQ(cfg.AMQPURL, logger)
		if err != nil {
			log.Fatal("rabbitmq: ", err)
		}
		events = rmq
	} else {
		mem := queue.NewInMemoryQueue(0, logger)
		eventService := service.NewEventService(logRepo, campaignRepo, contactRepo, logger)
		if err := eventService.Subscribe(mem); err != nil {
			log.Fatal("subscribe email events: ", err)
		}
		events = mem
	}
	defer events.Close()

	verifier, err := auth.NewJWTVerifier(cfg.AuthJWTSecret, cfg.AuthAudience, cfg.AuthIssuer)
	if err != nil {
		log.Fatal("auth: ", err)
	}

	a := &app{
		verifier:       verifier,
		access:         accessService,
		public:         handler.NewPublicHandler(contactService, events, pool, cfg.WebhookSecret, logger),
		contacts:       &controller.ContactController{ContactService: contactService},
		templates:      &controller.TemplateController{TemplateService: templateService},
		campaigns:      &controller.CampaignController{CampaignService: campaignService, EmailService: emailService},
		emails:         &controller.EmailController{EmailService: emailService},
		dashboard:      &controller.DashboardController{DashboardService: dashboardService},
		admin:          &controller.AdminController{AccessService: accessService},
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger,
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server: ", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "event", "server.shutdown_failed", "error", err)
	}
}
