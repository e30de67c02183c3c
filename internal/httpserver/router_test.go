package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fast-queue/internal/account"
	"fast-queue/internal/account/account_api"
	"fast-queue/internal/analytics"
	"fast-queue/internal/analytics/analytics_api"
	"fast-queue/internal/auth"
	"fast-queue/internal/database/memory"
	"fast-queue/internal/models"
	"fast-queue/internal/queue"
	"fast-queue/internal/queue/qr"
	"fast-queue/internal/queue/queue_api"
	"fast-queue/internal/realtime"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	handler  http.Handler
	registry *realtime.Registry
}

func newTestApp(t *testing.T, health func(context.Context) error) *testApp {
	t.Helper()
	store := memory.New()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)

	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry, nil, nil, nil)
	svc := queue.NewService(store, queue.NewKeyedLocker(), broadcaster, nil, nil)
	broadcaster.Source = svc

	wsOpts := realtime.DefaultWSOptions()
	wsOpts.PingInterval = 0

	return &testApp{
		registry: registry,
		handler: NewRouter(Options{
			Verifier: tokens,
			Queues:   queue_api.NewHandler(svc, broadcaster, qr.NewGenerator("http://localhost:3000"), wsOpts, nil),
			Accounts: account_api.NewHandler(account.NewService(store, tokens, nil), nil),
			Stats:    analytics_api.NewHandler(analytics.NewService(store), svc, nil),
			Health:   health,
		}),
	}
}

func (a *testApp) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testApp) login(t *testing.T, name, email string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/establishments", "",
		fmt.Sprintf(`{"name":%q,"email":%q,"password":"secret1"}`, name, email))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/auth/password", "", fmt.Sprintf(`{"email":%q,"password":"secret1"}`, email))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.TokenResponse](t, rec).AccessToken
}

func (a *testApp) createQueue(t *testing.T, token string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/queues", token, `{"title":"Caixa","averageTimeInMinutes":5,"isActive":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]string](t, rec)["queueId"]
}

func (a *testApp) takeTicket(t *testing.T, queueID string) map[string]string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/queues/"+queueID+"/tickets", "", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]string](t, rec)
}

func TestHealthz(t *testing.T) {
	rec := newTestApp(t, nil).do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = newTestApp(t, func(context.Context) error { return errors.New("db down") }).
		do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQueueLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.login(t, "Padaria Central", "padaria@x.com")

	rec := app.do(t, http.MethodPost, "/queues", "", `{"title":"Caixa","averageTimeInMinutes":5}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodPost, "/queues", token, `{"title":"Caixa","averageTimeInMinutes":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	queueID := app.createQueue(t, token)

	first := app.takeTicket(t, queueID)
	second := app.takeTicket(t, queueID)
	third := app.takeTicket(t, queueID)
	assert.Equal(t, []string{"1", "2", "3"}, []string{first["number"], second["number"], third["number"]})

	rec = app.do(t, http.MethodGet, "/queues/"+queueID+"/tickets/"+third["ticketId"], "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[models.TicketView](t, rec)
	assert.Equal(t, 10, view.AverageToBeCalled)
	assert.Equal(t, models.TicketWaiting, view.Status)

	rec = app.do(t, http.MethodGet, "/queues", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	summaries := decode[[]models.QueueSummary](t, rec)
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].Tickets)

	rec = app.do(t, http.MethodPost, "/queues/"+queueID+"/next", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	called := decode[models.Ticket](t, rec)
	assert.Equal(t, "1", called.Number)
	assert.Equal(t, models.TicketCalled, called.Status)
	assert.NotNil(t, called.CalledAt)

	rec = app.do(t, http.MethodPatch, "/tickets/"+first["ticketId"]+"/done", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.TicketDone, decode[models.Ticket](t, rec).Status)

	rec = app.do(t, http.MethodPatch, "/tickets/"+first["ticketId"]+"/skip", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPatch, "/tickets/"+second["ticketId"]+"/skip", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodGet, "/queues/"+queueID+"/tickets?status=waiting", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	waiting := decode[[]models.Ticket](t, rec)
	require.Len(t, waiting, 1)
	assert.Equal(t, "3", waiting[0].Number)

	rec = app.do(t, http.MethodGet, "/queues/"+queueID+"/stats", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[analytics.QueueStats](t, rec)
	assert.Equal(t, 3, stats.TotalTickets)
	assert.Equal(t, 1, stats.Waiting)
	assert.Equal(t, 1, stats.Done)
	assert.Equal(t, 1, stats.Skipped)

	rec = app.do(t, http.MethodGet, "/queues/"+queueID+"/tickets?status=bogus", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodGet, "/queues/"+queueID+"/tickets/"+third["ticketId"]+"/qr", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = app.do(t, http.MethodPatch, "/queues/"+queueID, token, `{"isActive":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.Queue](t, rec).IsActive)

	rec = app.do(t, http.MethodPost, "/queues/"+queueID+"/tickets", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOtherEstablishmentSeesNotFound(t *testing.T) {
	app := newTestApp(t, nil)
	owner := app.login(t, "Dono", "dono@x.com")
	other := app.login(t, "Vizinho", "vizinho@x.com")
	queueID := app.createQueue(t, owner)
	ticket := app.takeTicket(t, queueID)

	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/queues/"+queueID, other, "").Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodPost, "/queues/"+queueID+"/next", other, "").Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/queues/"+queueID+"/stats", other, "").Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodPatch, "/tickets/"+ticket["ticketId"]+"/done", other, "").Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/queues/missing/tickets/x", "", "").Code)
}

func TestCallNextOnEmptyQueue(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.login(t, "Vazia", "vazia@x.com")
	queueID := app.createQueue(t, token)

	rec := app.do(t, http.MethodPost, "/queues/"+queueID+"/next", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestCORSPreflight(t *testing.T) {
	app := newTestApp(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/queues", nil)
	req.Header.Set("Origin", "https://painel.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func dialWS(t *testing.T, srv *httptest.Server, queueID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + queueID
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readMessage(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebsocketUnknownQueueIsClosed(t *testing.T) {
	app := newTestApp(t, nil)
	srv := httptest.NewServer(app.handler)
	defer srv.Close()

	c := dialWS(t, srv, "missing")
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, realtime.CloseQueueNotFound, ce.Code)
}

func TestWebsocketReceivesSnapshotAndCalls(t *testing.T) {
	app := newTestApp(t, nil)
	srv := httptest.NewServer(app.handler)
	defer srv.Close()

	token := app.login(t, "Clinica", "clinica@x.com")
	queueID := app.createQueue(t, token)
	app.takeTicket(t, queueID)

	c := dialWS(t, srv, queueID)
	snapshot := readMessage(t, c)
	assert.Equal(t, "currentNumber", snapshot["type"])
	assert.Nil(t, snapshot["number"])

	require.Eventually(t, func() bool { return app.registry.Count(queueID) == 1 }, 2*time.Second, 10*time.Millisecond)

	rec := app.do(t, http.MethodPost, "/queues/"+queueID+"/next", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	called := readMessage(t, c)
	assert.Equal(t, "newTicketCalled", called["type"])
	ticket := called["ticket"].(map[string]any)
	assert.Equal(t, "1", ticket["number"])

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("ping")))
	again := readMessage(t, c)
	assert.Equal(t, "currentNumber", again["type"])
	assert.Equal(t, "1", again["number"])

	c.Close()
	require.Eventually(t, func() bool { return !app.registry.Has(queueID) }, 2*time.Second, 10*time.Millisecond)
}

func TestSSEUnknownQueue(t *testing.T) {
	rec := newTestApp(t, nil).do(t, http.MethodGet, "/sse/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
