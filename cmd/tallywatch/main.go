package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/pubsub"
)

func main() {
	addr := flag.String("addr", "localhost:9090", "admin server address")
	pollID := flag.Int64("poll", 1, "poll id to watch")
	flag.Parse()

	url := fmt.Sprintf("ws://%s/ws/polls/%d", *addr, *pollID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	log.WithField("url", url).Info("connecting to tally stream")
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		log.WithError(err).Fatal("error connecting to websocket")
	}
	defer conn.CloseNow()

	log.Info("connected, waiting for tally updates...")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "client shutting down")
				log.Info("tally watcher terminated")
				return
			}
			log.WithError(err).Error("error reading from websocket")
			return
		}

		var update pubsub.TallyUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			log.WithError(err).Warn("skipping undecodable frame")
			continue
		}
		log.WithFields(log.Fields{
			"poll_id":   update.PollID,
			"status":    update.Status,
			"yes":       update.Yes,
			"no":        update.No,
			"if_needed": update.IfNeeded,
		}).Info("tally update")
	}
}
