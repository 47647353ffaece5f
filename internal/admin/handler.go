package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
	"github.com/Guizzs26/game_rsvp_bot/internal/schedule"
)

type Response struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Scheduler is what the command endpoints need from the scheduler.
type Scheduler interface {
	Trigger(ctx context.Context, kind schedule.Kind) error
	Statuses() []schedule.Status
}

// PollCommands are the poll operations an operator can run by hand.
type PollCommands interface {
	TestPoll(ctx context.Context, teamIndex int) (*model.PollWithGame, bool, error)
	CreatePollsOn(ctx context.Context, daysAhead int) (time.Time, []schedule.OpenedPoll, error)
	TestReminder(ctx context.Context) (*model.PollWithGame, error)
}

type TallyStream interface {
	Serve(ctx context.Context, conn *websocket.Conn, pollID int64)
}

type Handler struct {
	scheduler Scheduler
	polls     PollCommands
	tallies   TallyStream
}

func NewHandler(s Scheduler, p PollCommands, ts TallyStream) *Handler {
	return &Handler{scheduler: s, polls: p, tallies: ts}
}

type testPollRequest struct {
	TeamIndex int `json:"team_index" binding:"gte=0"`
}

func (h *Handler) PostTestPoll(c *gin.Context) {
	var req testPollRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	pg, created, err := h.polls.TestPoll(c.Request.Context(), req.TeamIndex)
	switch {
	case errors.Is(err, schedule.ErrInvalidTeam):
		c.JSON(http.StatusBadRequest, Response{Message: err.Error()})
		return
	case errors.Is(err, schedule.ErrNoUpcomingGame):
		c.JSON(http.StatusNotFound, Response{Message: err.Error()})
		return
	case err != nil:
		log.WithError(err).Error("failed to create test poll")
		c.JSON(http.StatusInternalServerError, Response{Message: "internal error"})
		return
	}

	when := pg.Game.StartTime.Format("January 02")
	if !created {
		c.JSON(http.StatusOK, Response{OK: true, Message: fmt.Sprintf("Poll already exists for %s game on %s", pg.Game.TeamName, when)})
		return
	}
	c.JSON(http.StatusOK, Response{OK: true, Message: fmt.Sprintf("Test poll created for %s game on %s", pg.Game.TeamName, when)})
}

type createPollRequest struct {
	DaysAhead int `json:"days_ahead" binding:"gte=0"`
}

func (h *Handler) PostCreatePoll(c *gin.Context) {
	var req createPollRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	day, opened, err := h.polls.CreatePollsOn(c.Request.Context(), req.DaysAhead)
	if errors.Is(err, schedule.ErrInvalidDays) {
		c.JSON(http.StatusBadRequest, Response{Message: err.Error()})
		return
	}
	if err != nil && len(opened) == 0 {
		log.WithError(err).Error("failed to create polls")
		c.JSON(http.StatusInternalServerError, Response{Message: "internal error"})
		return
	}
	if len(opened) == 0 {
		c.JSON(http.StatusNotFound, Response{Message: fmt.Sprintf("No games found on %s", day.Format("Monday, January 02, 2006"))})
		return
	}

	lines := make([]string, 0, len(opened))
	for _, op := range opened {
		when := op.Game.StartTime.In(day.Location()).Format("January 02 at 03:04 PM")
		if op.Created {
			lines = append(lines, fmt.Sprintf("Created poll for %s game on %s", op.Game.TeamName, when))
		} else {
			lines = append(lines, fmt.Sprintf("Poll already exists for %s game on %s", op.Game.TeamName, when))
		}
	}
	if err != nil {
		log.WithError(err).Warn("some polls could not be created")
		lines = append(lines, "Some games failed, see logs")
	}
	c.JSON(http.StatusOK, Response{OK: err == nil, Message: strings.Join(lines, "\n")})
}

func (h *Handler) PostTestReminder(c *gin.Context) {
	pg, err := h.polls.TestReminder(c.Request.Context())
	switch {
	case errors.Is(err, schedule.ErrNoUpcomingGame):
		c.JSON(http.StatusNotFound, Response{Message: "No upcoming games found"})
		return
	case err != nil:
		log.WithError(err).Error("failed to send test reminder")
		c.JSON(http.StatusInternalServerError, Response{Message: "internal error"})
		return
	}
	c.JSON(http.StatusOK, Response{OK: true, Message: fmt.Sprintf("Test reminder sent for game on %s", pg.Game.StartTime.Format("January 02 at 03:04 PM"))})
}

func (h *Handler) PostCheckGames(c *gin.Context) {
	h.runTrigger(c, schedule.PollCreation)
}

func (h *Handler) PostCheckChanges(c *gin.Context) {
	h.runTrigger(c, schedule.ChangeCheck)
}

func (h *Handler) PostReminders(c *gin.Context) {
	h.runTrigger(c, schedule.Reminders)
}

func (h *Handler) runTrigger(c *gin.Context, kind schedule.Kind) {
	err := h.scheduler.Trigger(c.Request.Context(), kind)
	switch {
	case errors.Is(err, schedule.ErrTriggerBusy):
		c.JSON(http.StatusConflict, Response{Message: fmt.Sprintf("%s is already running", kind)})
	case err != nil:
		log.WithError(err).WithField("trigger", kind).Error("manual trigger failed")
		c.JSON(http.StatusInternalServerError, Response{Message: fmt.Sprintf("%s failed: %v", kind, err)})
	default:
		c.JSON(http.StatusOK, Response{OK: true, Message: fmt.Sprintf("%s complete", kind)})
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"message":  "ok",
		"triggers": h.scheduler.Statuses(),
	})
}

func (h *Handler) GetPollStream(c *gin.Context) {
	pollID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || pollID <= 0 {
		c.JSON(http.StatusBadRequest, Response{Message: "invalid poll id"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	h.tallies.Serve(c.Request.Context(), conn, pollID)
}

// RegisterHandlers mounts the public and the operator routes on r.
func RegisterHandlers(r gin.IRouter, h *Handler, secret, role string) {
	r.GET("/health", h.GetHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/polls/:id", h.GetPollStream)

	cmds := r.Group("/admin/commands", RequireRole(secret, role))
	cmds.POST("/test-poll", h.PostTestPoll)
	cmds.POST("/create-poll", h.PostCreatePoll)
	cmds.POST("/test-reminder", h.PostTestReminder)
	cmds.POST("/check-games", h.PostCheckGames)
	cmds.POST("/check-changes", h.PostCheckChanges)
	cmds.POST("/reminders", h.PostReminders)
}
