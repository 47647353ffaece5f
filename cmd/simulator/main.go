package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/event"
	"github.com/Guizzs26/game_rsvp_bot/internal/simulation"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma separated kafka brokers")
	topic := flag.String("topic", "chat-reactions", "reactions topic")
	refs := flag.String("refs", "", "comma separated poll message refs to react on")
	users := flag.Int("users", 20, "number of distinct simulated users")
	interval := flag.Duration("interval", 500*time.Millisecond, "delay between reactions")
	flag.Parse()

	log.WithField("topic", *topic).Info("starting reaction simulator")

	publisher, err := event.NewKafkaPublisher(strings.Split(*brokers, ","), *topic, event.Auth{})
	if err != nil {
		log.WithError(err).Fatal("error creating kafka publisher")
	}
	defer publisher.Close()

	sim, err := simulation.New(publisher, strings.Split(*refs, ","), *users, *interval)
	if err != nil {
		log.WithError(err).Fatal("error creating simulator")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sim.Run(ctx); err != nil {
		log.WithError(err).Error("simulator stopped with error")
	}
	log.Info("simulator terminated")
}
