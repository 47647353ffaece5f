package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
	"github.com/Guizzs26/game_rsvp_bot/internal/schedule"
)

const (
	testSecret = "s3cret"
	testRole   = "admin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeScheduler struct {
	triggered []schedule.Kind
	err       error
}

func (f *fakeScheduler) Trigger(_ context.Context, kind schedule.Kind) error {
	f.triggered = append(f.triggered, kind)
	return f.err
}

func (f *fakeScheduler) Statuses() []schedule.Status {
	return []schedule.Status{{Kind: schedule.Reminders, Interval: "1h0m0s"}}
}

type fakeTester struct {
	gotIndex int
	created  bool
	err      error

	gotDays   int
	opened    []schedule.OpenedPoll
	createErr error

	reminded    int
	reminderErr error
}

func (f *fakeTester) TestPoll(_ context.Context, idx int) (*model.PollWithGame, bool, error) {
	f.gotIndex = idx
	if f.err != nil {
		return nil, false, f.err
	}
	return &model.PollWithGame{
		Poll: model.Poll{ID: 1},
		Game: model.Game{TeamName: "Otters", StartTime: time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)},
	}, f.created, nil
}

func (f *fakeTester) CreatePollsOn(_ context.Context, days int) (time.Time, []schedule.OpenedPoll, error) {
	f.gotDays = days
	return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), f.opened, f.createErr
}

func (f *fakeTester) TestReminder(_ context.Context) (*model.PollWithGame, error) {
	if f.reminderErr != nil {
		return nil, f.reminderErr
	}
	f.reminded++
	return &model.PollWithGame{
		Poll: model.Poll{ID: 1},
		Game: model.Game{TeamName: "Otters", StartTime: time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)},
	}, nil
}

type fakeStream struct {
	served chan int64
}

func (f *fakeStream) Serve(_ context.Context, conn *websocket.Conn, pollID int64) {
	f.served <- pollID
	conn.Close(websocket.StatusNormalClosure, "")
}

func setupRouter(t *testing.T, s *fakeScheduler, tester *fakeTester) *gin.Engine {
	t.Helper()
	r := gin.New()
	RegisterHandlers(r, NewHandler(s, tester, &fakeStream{served: make(chan int64, 1)}), testSecret, testRole)
	return r
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := GenerateToken("ops", role, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(r http.Handler, method, path, tok, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestCommands_RequireOperatorRole(t *testing.T) {
	r := setupRouter(t, &fakeScheduler{}, &fakeTester{})

	w := do(r, http.MethodPost, "/admin/commands/check-games", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/admin/commands/check-games", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/admin/commands/check-games", token(t, "viewer"), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, decode(t, w).OK)

	forged, err := GenerateToken("ops", testRole, "other-secret", time.Hour)
	require.NoError(t, err)
	w = do(r, http.MethodPost, "/admin/commands/check-games", forged, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := GenerateToken("ops", testRole, testSecret, -time.Minute)
	require.NoError(t, err)
	w = do(r, http.MethodPost, "/admin/commands/check-games", expired, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCommands_RunTriggers(t *testing.T) {
	s := &fakeScheduler{}
	r := setupRouter(t, s, &fakeTester{})
	tok := token(t, testRole)

	for path, kind := range map[string]schedule.Kind{
		"/admin/commands/check-games":   schedule.PollCreation,
		"/admin/commands/check-changes": schedule.ChangeCheck,
		"/admin/commands/reminders":     schedule.Reminders,
	} {
		w := do(r, http.MethodPost, path, tok, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		resp := decode(t, w)
		assert.True(t, resp.OK)
		assert.Contains(t, resp.Message, string(kind))
	}
	assert.Len(t, s.triggered, 3)
}

func TestCommands_BusyAndFailingTriggers(t *testing.T) {
	tok := token(t, testRole)

	busy := setupRouter(t, &fakeScheduler{err: schedule.ErrTriggerBusy}, &fakeTester{})
	w := do(busy, http.MethodPost, "/admin/commands/reminders", tok, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	failing := setupRouter(t, &fakeScheduler{err: errors.New("ledger locked")}, &fakeTester{})
	w = do(failing, http.MethodPost, "/admin/commands/reminders", tok, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode(t, w).Message, "ledger locked")
}

func TestTestPoll(t *testing.T) {
	tok := token(t, testRole)

	tester := &fakeTester{created: true}
	r := setupRouter(t, &fakeScheduler{}, tester)
	w := do(r, http.MethodPost, "/admin/commands/test-poll", tok, `{"team_index":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Test poll created for Otters game on March 10", decode(t, w).Message)
	assert.Equal(t, 1, tester.gotIndex)

	w = do(r, http.MethodPost, "/admin/commands/test-poll", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, tester.gotIndex)

	w = do(r, http.MethodPost, "/admin/commands/test-poll", tok, `{"team_index":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	existing := setupRouter(t, &fakeScheduler{}, &fakeTester{created: false})
	w = do(existing, http.MethodPost, "/admin/commands/test-poll", tok, `{"team_index":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w).Message, "already exists")

	invalid := setupRouter(t, &fakeScheduler{}, &fakeTester{err: schedule.ErrInvalidTeam})
	w = do(invalid, http.MethodPost, "/admin/commands/test-poll", tok, `{"team_index":5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	none := setupRouter(t, &fakeScheduler{}, &fakeTester{err: schedule.ErrNoUpcomingGame})
	w = do(none, http.MethodPost, "/admin/commands/test-poll", tok, `{"team_index":0}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePoll(t *testing.T) {
	tok := token(t, testRole)
	game := func(uid string, hour int) model.PollWithGame {
		return model.PollWithGame{Game: model.Game{UID: uid, TeamName: "Otters", StartTime: time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC)}}
	}

	tester := &fakeTester{opened: []schedule.OpenedPoll{
		{PollWithGame: game("a", 13), Created: true},
		{PollWithGame: game("b", 19), Created: false},
	}}
	r := setupRouter(t, &fakeScheduler{}, tester)

	w := do(r, http.MethodPost, "/admin/commands/create-poll", tok, `{"days_ahead":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.OK)
	assert.Contains(t, resp.Message, "Created poll for Otters game on March 10 at 01:00 PM")
	assert.Contains(t, resp.Message, "Poll already exists for Otters game on March 10 at 07:00 PM")
	assert.Equal(t, 3, tester.gotDays)

	w = do(r, http.MethodPost, "/admin/commands/create-poll", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, tester.gotDays)

	w = do(r, http.MethodPost, "/admin/commands/create-poll", tok, `{"days_ahead":-2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	empty := setupRouter(t, &fakeScheduler{}, &fakeTester{})
	w = do(empty, http.MethodPost, "/admin/commands/create-poll", tok, `{"days_ahead":1}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No games found on Tuesday, March 10, 2026", decode(t, w).Message)

	failing := setupRouter(t, &fakeScheduler{}, &fakeTester{createErr: errors.New("ledger locked")})
	w = do(failing, http.MethodPost, "/admin/commands/create-poll", tok, `{"days_ahead":1}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(r, http.MethodPost, "/admin/commands/create-poll", "", `{"days_ahead":1}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTestReminder(t *testing.T) {
	tok := token(t, testRole)

	tester := &fakeTester{}
	r := setupRouter(t, &fakeScheduler{}, tester)
	w := do(r, http.MethodPost, "/admin/commands/test-reminder", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Test reminder sent for game on March 10 at 07:00 PM", decode(t, w).Message)
	assert.Equal(t, 1, tester.reminded)

	none := setupRouter(t, &fakeScheduler{}, &fakeTester{reminderErr: schedule.ErrNoUpcomingGame})
	w = do(none, http.MethodPost, "/admin/commands/test-reminder", tok, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/admin/commands/test-reminder", token(t, "viewer"), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	r := setupRouter(t, &fakeScheduler{}, &fakeTester{})

	w := do(r, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"triggers"`)

	w = do(r, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPollStream(t *testing.T) {
	stream := &fakeStream{served: make(chan int64, 1)}
	r := gin.New()
	RegisterHandlers(r, NewHandler(&fakeScheduler{}, &fakeTester{}, stream), testSecret, testRole)

	w := do(r, http.MethodGet, "/ws/polls/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/polls/12", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	select {
	case id := <-stream.served:
		assert.Equal(t, int64(12), id)
	case <-ctx.Done():
		t.Fatal("stream not served")
	}
}
