package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/admin"
	"github.com/Guizzs26/game_rsvp_bot/internal/changes"
	"github.com/Guizzs26/game_rsvp_bot/internal/config"
	"github.com/Guizzs26/game_rsvp_bot/internal/event"
	"github.com/Guizzs26/game_rsvp_bot/internal/feed"
	"github.com/Guizzs26/game_rsvp_bot/internal/keylock"
	"github.com/Guizzs26/game_rsvp_bot/internal/metrics"
	"github.com/Guizzs26/game_rsvp_bot/internal/notify"
	"github.com/Guizzs26/game_rsvp_bot/internal/processing"
	"github.com/Guizzs26/game_rsvp_bot/internal/pubsub"
	"github.com/Guizzs26/game_rsvp_bot/internal/schedule"
	"github.com/Guizzs26/game_rsvp_bot/internal/store"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("error loading configuration")
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	mainCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger, err := store.OpenLedger(mainCtx, cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("error opening poll ledger")
	}
	defer ledger.Close()

	state, err := schedule.OpenStateStore(cfg.StatePath)
	if err != nil {
		log.WithError(err).Fatal("error opening trigger state")
	}
	defer state.Close()

	var lease store.Lease
	if cfg.RedisURL != "" {
		rl, err := store.NewRedisLease(mainCtx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("error connecting to redis")
		}
		defer rl.Close()
		lease = rl
		log.Info("trigger leases enabled")
	}

	var auth event.Auth
	if cfg.KafkaSASL {
		auth = event.Auth{Username: cfg.BotUsername, Password: cfg.BotToken}
	}

	actions, err := event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.ActionsTopic, auth)
	if err != nil {
		log.WithError(err).Fatal("error creating chat action publisher")
	}
	defer actions.Close()

	reactions, err := event.NewKafkaConsumer(cfg.KafkaBrokers, cfg.ReactionsTopic, cfg.ConsumerGroup, auth)
	if err != nil {
		log.WithError(err).Fatal("error creating reaction consumer")
	}
	defer reactions.Close()

	m := metrics.New(prometheus.DefaultRegisterer, "rsvpbot")

	hub := pubsub.NewHub(m)
	go hub.Run(mainCtx)

	notifier := notify.New(actions, ledger, cfg.ChannelID, cfg.Location, cfg.NotifyRPS, cfg.NotifyBurst, m)
	builder := feed.NewBuilder(cfg.Location, cfg.FeedHorizon, cfg.FeedTimeout)
	detector := changes.NewDetector(ledger, cfg.ChangeThreshold)
	locks := keylock.New[int64]()

	jobs := schedule.NewJobs(schedule.JobsConfig{
		Feeds:         cfg.Feeds,
		PollLeadTime:  cfg.PollLeadTime,
		ReminderLead:  cfg.ReminderLeadTime,
		MissingPolicy: cfg.MissingPolicy,
		Location:      cfg.Location,
	}, builder, detector, ledger, notifier, hub, locks, m)

	scheduler := schedule.New(
		schedule.NewTrigger(schedule.PollCreation, cfg.PollCreateInterval, jobs.CreatePolls, state, lease, m),
		schedule.NewTrigger(schedule.Reminders, cfg.ReminderInterval, jobs.SendReminders, state, lease, m),
		schedule.NewTrigger(schedule.ChangeCheck, cfg.ChangeInterval, jobs.CheckChanges, state, lease, m),
	)
	scheduler.Start(mainCtx)

	reconciler := processing.NewReconciler(reactions, ledger, notifier, hub, locks, m, processing.Options{
		Workers:   cfg.ReconcileWorkers,
		BotUserID: cfg.BotUserID,
	})
	reconcilerDone := make(chan struct{})
	go func() {
		defer close(reconcilerDone)
		if err := reconciler.Run(mainCtx); err != nil {
			log.WithError(err).Error("error during reconciler execution")
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	admin.RegisterHandlers(router, admin.NewHandler(scheduler, jobs, hub), cfg.AdminJWTSecret, cfg.OperatorRole)

	srv := &http.Server{Addr: cfg.AdminAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.WithField("addr", cfg.AdminAddr).Info("admin server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("admin server failed")
		}
	}()

	log.WithFields(log.Fields{
		"teams":    len(cfg.Feeds),
		"topic":    cfg.ReactionsTopic,
		"group_id": cfg.ConsumerGroup,
	}).Info("rsvp bot started")

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan

	log.Info("shutdown signal received, stopping the bot...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("error shutting down admin server")
	}

	cancel()
	scheduler.Wait()
	<-reconcilerDone

	log.Info("rsvp bot terminated")
}
