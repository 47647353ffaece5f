package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/metrics"
	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

// TallyUpdate is the frame pushed to live tally subscribers.
type TallyUpdate struct {
	PollID   int64            `json:"poll_id"`
	Status   model.PollStatus `json:"status"`
	Yes      int              `json:"yes"`
	No       int              `json:"no"`
	IfNeeded int              `json:"if_needed"`
	At       time.Time        `json:"at"`
}

type Message struct {
	PollID int64
	Data   []byte
}

// one subscriber connected via websocket
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	PollID int64
}

type Hub struct {
	Clients    map[int64]map[*Client]bool
	Broadcast  chan *Message
	Register   chan *Client
	Unregister chan *Client

	// closed when Run returns
	done    chan struct{}
	metrics *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		Clients:    make(map[int64]map[*Client]bool),
		Broadcast:  make(chan *Message, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, conn := range h.Clients {
				for c := range conn {
					close(c.Send)
				}
			}
			h.Clients = make(map[int64]map[*Client]bool)
			h.metrics.TallySubscribers.Set(0)
			return

		case client := <-h.Register:
			conn := h.Clients[client.PollID]
			if conn == nil {
				conn = make(map[*Client]bool)
				h.Clients[client.PollID] = conn
			}
			conn[client] = true
			h.metrics.TallySubscribers.Inc()

		case client := <-h.Unregister:
			h.drop(client)

		case message := <-h.Broadcast:
			for c := range h.Clients[message.PollID] {
				select {
				case c.Send <- message.Data:

				default:
					// slow subscriber
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	conn := h.Clients[client.PollID]
	if conn == nil {
		return
	}
	if _, ok := conn[client]; !ok {
		return
	}
	delete(conn, client)
	close(client.Send)
	h.metrics.TallySubscribers.Dec()
	if len(conn) == 0 {
		delete(h.Clients, client.PollID)
	}
}

// Publish queues a tally update for the subscribers of pollID. It never
// blocks the caller; updates are dropped while the hub is saturated.
func (h *Hub) Publish(pollID int64, status model.PollStatus, tally model.Tally) {
	data, err := json.Marshal(TallyUpdate{
		PollID:   pollID,
		Status:   status,
		Yes:      tally.Yes,
		No:       tally.No,
		IfNeeded: tally.IfNeeded,
		At:       time.Now().UTC(),
	})
	if err != nil {
		log.WithError(err).WithField("poll_id", pollID).Error("error encoding tally update")
		return
	}

	select {
	case h.Broadcast <- &Message{PollID: pollID, Data: data}:
	default:
		log.WithField("poll_id", pollID).Warn("tally hub saturated, dropping update")
	}
}

// Serve attaches conn to the subscribers of pollID and blocks until the
// connection ends or ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, pollID int64) {
	c := &Client{Hub: h, Conn: conn, Send: make(chan []byte, 16), PollID: pollID}

	select {
	case h.Register <- c:
	case <-ctx.Done():
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	go c.WritePump(ctx)
	c.ReadPump(ctx)
}

// WritePump sends messages from the hub to the WebSocket connection
func (c *Client) WritePump(ctx context.Context) {
	defer func() {
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	for m := range c.Send {
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := c.Conn.Write(wctx, websocket.MessageText, m)
		cancel()
		if err != nil {
			log.WithError(err).WithField("poll_id", c.PollID).Warn("error writing to tally subscriber")
			return
		}
	}
}

// ReadPump drains the connection so close frames are processed.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-ctx.Done():
		case <-c.Hub.done:
		}
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, _, err := c.Conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				log.WithField("poll_id", c.PollID).Debug("tally subscriber disconnected")
			} else {
				log.WithError(err).WithField("poll_id", c.PollID).Debug("tally subscriber read ended")
			}
			return
		}
	}
}
