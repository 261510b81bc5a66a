package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/isdelr/chirp-be/internal/auth"
	"github.com/isdelr/chirp-be/internal/database/dbtest"
	"github.com/isdelr/chirp-be/internal/outbox"
	"github.com/isdelr/chirp-be/internal/realtime"
	"github.com/isdelr/chirp-be/internal/services"
	"github.com/isdelr/chirp-be/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	router     http.Handler
	tokens     *auth.TokenService
	dispatcher *outbox.Dispatcher
	hub        *websocket.Hub
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppWithLimits(t, 1000, 1000)
}

func newTestAppWithLimits(t *testing.T, rps float64, burst int) *testApp {
	t.Helper()
	db := dbtest.Open(t)

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	dispatcher, err := outbox.NewDispatcher(db, services.NewFanoutService(db), realtime.NewLocalPublisher(hub), outbox.Options{})
	require.NoError(t, err)

	tokens := auth.NewTokenService("test-secret", 0)
	router := NewRouter(Deps{
		Users:              services.NewUserService(db),
		Posts:              services.NewPostService(db, dispatcher),
		Follows:            services.NewFollowService(db, dispatcher),
		Notifications:      services.NewNotificationService(db),
		Tokens:             tokens,
		Hub:                hub,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		AuthRateLimit:      rps,
		AuthRateBurst:      burst,
	})
	return &testApp{router: router, tokens: tokens, dispatcher: dispatcher, hub: hub}
}

type response struct {
	status int
	body   map[string]interface{}
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	res := response{status: rec.Code}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res.body), rec.Body.String())
	}
	return res
}

type account struct {
	id    string
	token string
}

func (a *testApp) signup(t *testing.T, name, email string) account {
	t.Helper()
	res := a.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, res.status, res.body)
	user := res.body["user"].(map[string]interface{})
	return account{id: user["id"].(string), token: res.body["token"].(string)}
}

func (a *testApp) drain(t *testing.T) {
	t.Helper()
	_, err := a.dispatcher.ProcessPending(context.Background())
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	res := app.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "ok", res.body["status"])
	assert.Equal(t, ServiceName, res.body["service"])
}

func TestSignupIssuesTokenForNewUser(t *testing.T) {
	app := newTestApp(t)
	res := app.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Alice", "email": "Alice@Example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, res.status)

	user := res.body["user"].(map[string]interface{})
	assert.Equal(t, "alice@example.com", user["email"])
	assert.Equal(t, "Alice", user["displayName"])
	assert.NotContains(t, user, "passwordHash")
	assert.NotContains(t, user, "PasswordHash")

	id, err := app.tokens.Verify(res.body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, user["id"], id.ID)
}

func TestSignupErrors(t *testing.T) {
	app := newTestApp(t)
	app.signup(t, "Alice", "alice@example.com")

	res := app.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Alice Again", "email": "ALICE@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, res.status)
	assert.Equal(t, "Email already registered", res.body["message"])

	res = app.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "B", "email": "nope", "password": "1",
	})
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "Invalid input", res.body["message"])
	errs := res.body["errors"].([]interface{})
	assert.Len(t, errs, 3)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginDoesNotRevealWhichPartIsWrong(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "Alice", "alice@example.com")

	ok := app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, ok.status)
	assert.Equal(t, alice.id, ok.body["user"].(map[string]interface{})["id"])

	wrongPassword := app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong-pass"})
	unknownEmail := app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "bob@example.com", "password": "secret123"})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.status)
	assert.Equal(t, wrongPassword, unknownEmail)
	assert.Equal(t, "Invalid credentials", wrongPassword.body["message"])
}

func TestAuthGateRejections(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "Alice", "alice@example.com")

	tests := []struct {
		header  string
		message string
	}{
		{"", auth.MsgMissingAuthHeader},
		{"Bearer", auth.MsgMissingToken},
		{"Bearer not-a-token", auth.MsgInvalidOrExpiredToken},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		app.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, tt.header)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tt.message, body["message"], tt.header)
	}

	res := app.do(t, http.MethodGet, "/api/auth/me", alice.token, nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, alice.id, res.body["user"].(map[string]interface{})["id"])
}

func TestPostLengthBoundaries(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "Alice", "alice@example.com")

	tests := []struct {
		length int
		status int
	}{
		{0, http.StatusBadRequest},
		{1, http.StatusCreated},
		{500, http.StatusCreated},
		{501, http.StatusBadRequest},
	}
	for _, tt := range tests {
		res := app.do(t, http.MethodPost, "/api/posts", alice.token, map[string]string{"text": strings.Repeat("x", tt.length)})
		assert.Equal(t, tt.status, res.status, "length %d", tt.length)
	}

	res := app.do(t, http.MethodPost, "/api/posts", "", map[string]string{"text": "anonymous"})
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = app.do(t, http.MethodGet, "/api/posts/me", alice.token, nil)
	require.Equal(t, http.StatusOK, res.status)
	posts := res.body["posts"].([]interface{})
	require.Len(t, posts, 2)
	first := posts[0].(map[string]interface{})
	assert.Len(t, first["text"], 500, "newest first")
	assert.Contains(t, first, "timestamp")
	assert.Equal(t, alice.id, first["author"].(map[string]interface{})["id"])
}

func TestFollowNotifyScenario(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "Alice", "alice@example.com")
	bob := app.signup(t, "Bob", "bob@example.com")

	res := app.do(t, http.MethodPost, "/api/follow/"+alice.id, bob.token, nil)
	require.Equal(t, http.StatusCreated, res.status)
	assert.Equal(t, "Successfully followed user", res.body["message"])

	res = app.do(t, http.MethodPost, "/api/posts", alice.token, map[string]string{"text": "hello bob"})
	require.Equal(t, http.StatusCreated, res.status)
	postID := res.body["id"]
	app.drain(t)

	res = app.do(t, http.MethodGet, "/api/notifications", alice.token, nil)
	require.Equal(t, http.StatusOK, res.status)
	aliceInbox := res.body["notifications"].([]interface{})
	require.Len(t, aliceInbox, 1)
	n := aliceInbox[0].(map[string]interface{})
	assert.Equal(t, "follow", n["type"])
	assert.Equal(t, bob.id, n["actor"].(map[string]interface{})["id"])
	assert.Nil(t, n["post"])

	res = app.do(t, http.MethodGet, "/api/notifications", bob.token, nil)
	bobInbox := res.body["notifications"].([]interface{})
	require.Len(t, bobInbox, 1)
	n = bobInbox[0].(map[string]interface{})
	assert.Equal(t, "new_post", n["type"])
	assert.Equal(t, postID, n["post"].(map[string]interface{})["id"])
	assert.Equal(t, false, n["read"])

	// After unfollowing, new posts no longer reach Bob.
	res = app.do(t, http.MethodDelete, "/api/follow/"+alice.id, bob.token, nil)
	require.Equal(t, http.StatusOK, res.status)
	app.do(t, http.MethodPost, "/api/posts", alice.token, map[string]string{"text": "bob is gone"})
	app.drain(t)

	res = app.do(t, http.MethodGet, "/api/notifications/unread-count", bob.token, nil)
	assert.Equal(t, float64(1), res.body["count"])
}

func TestFollowErrors(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "Alice", "alice@example.com")
	bob := app.signup(t, "Bob", "bob@example.com")

	res := app.do(t, http.MethodPost, "/api/follow/"+alice.id, alice.token, nil)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "Cannot follow yourself", res.body["message"])

	res = app.do(t, http.MethodPost, "/api/follow/missing", alice.token, nil)
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "User not found", res.body["message"])

	require.Equal(t, http.StatusCreated, app.do(t, http.MethodPost, "/api/follow/"+alice.id, bob.token, nil).status)
	res = app.do(t, http.MethodPost, "/api/follow/"+alice.id, bob.token, nil)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "Already following this user", res.body["message"])

	res = app.do(t, http.MethodDelete, "/api/follow/"+bob.id, alice.token, nil)
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "Not following this user", res.body["message"])

	res = app.do(t, http.MethodGet, "/api/follow/"+alice.id+"/status", bob.token, nil)
	assert.Equal(t, true, res.body["isFollowing"])
	res = app.do(t, http.MethodGet, "/api/follow/"+alice.id+"/followers", "", nil)
	assert.Len(t, res.body["followers"], 1)
	res = app.do(t, http.MethodGet, "/api/follow/"+bob.id+"/following", "", nil)
	assert.Len(t, res.body["following"], 1)

	res = app.do(t, http.MethodGet, "/api/users/"+alice.id, "", nil)
	require.Equal(t, http.StatusOK, res.status)
	stats := res.body["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["followers"])
}

func TestNotificationOwnership(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "Alice", "alice@example.com")
	bob := app.signup(t, "Bob", "bob@example.com")
	app.do(t, http.MethodPost, "/api/follow/"+alice.id, bob.token, nil)
	app.drain(t)

	res := app.do(t, http.MethodGet, "/api/notifications", alice.token, nil)
	id := res.body["notifications"].([]interface{})[0].(map[string]interface{})["id"].(string)

	res = app.do(t, http.MethodPatch, "/api/notifications/"+id+"/read", bob.token, nil)
	assert.Equal(t, http.StatusForbidden, res.status)

	res = app.do(t, http.MethodPatch, "/api/notifications/missing/read", alice.token, nil)
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "Notification not found", res.body["message"])

	res = app.do(t, http.MethodPatch, "/api/notifications/"+id+"/read", alice.token, nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "Notification marked as read", res.body["message"])
	assert.Equal(t, true, res.body["notification"].(map[string]interface{})["read"])
}

func TestMarkAllReadTwice(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "Alice", "alice@example.com")
	bob := app.signup(t, "Bob", "bob@example.com")
	app.do(t, http.MethodPost, "/api/follow/"+alice.id, bob.token, nil)
	app.drain(t)

	for _, want := range []float64{1, 0} {
		res := app.do(t, http.MethodPatch, "/api/notifications/read-all", alice.token, nil)
		require.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, "All notifications marked as read", res.body["message"])
		assert.Equal(t, want, res.body["updated"])

		res = app.do(t, http.MethodGet, "/api/notifications/unread-count", alice.token, nil)
		assert.Equal(t, float64(0), res.body["count"])
	}
}

func TestAuthEndpointsAreRateLimited(t *testing.T) {
	app := newTestAppWithLimits(t, 0.001, 2)
	creds := map[string]string{"email": "nobody@example.com", "password": "secret123"}

	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodPost, "/api/auth/login", "", creds).status)
	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodPost, "/api/auth/login", "", creds).status)
	res := app.do(t, http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, res.status)
	assert.Equal(t, "Too many requests", res.body["message"])

	// Other routes are not throttled.
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/api/posts", "", nil).status)
}

func TestUnknownRoute(t *testing.T) {
	app := newTestApp(t)
	res := app.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "Route not found", res.body["message"])
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.do(t, http.MethodGet, "/api/posts", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chirp_http_requests_total")
}

func TestWebsocketReceivesNotifications(t *testing.T) {
	app := newTestApp(t)
	alice := app.signup(t, "Alice", "alice@example.com")
	bob := app.signup(t, "Bob", "bob@example.com")

	srv := httptest.NewServer(app.router)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"

	_, resp, err := gorilla.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := gorilla.DefaultDialer.Dial(wsURL+"?token="+bob.token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	read := func() websocket.Message {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg websocket.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}
	require.Equal(t, websocket.ActionConnected, read().Action)

	app.do(t, http.MethodPost, "/api/follow/"+alice.id, bob.token, nil)
	app.do(t, http.MethodPost, "/api/posts", alice.token, map[string]string{"text": "live"})
	app.drain(t)

	msg := read()
	require.Equal(t, websocket.ActionNotification, msg.Action)
	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, "new_post", payload["type"])
	assert.Equal(t, bob.id, payload["userId"])

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(`{"action":"unread_count"}`)))
	msg = read()
	assert.Equal(t, websocket.ActionUnreadCount, msg.Action)
	assert.Equal(t, float64(1), msg.Payload.(map[string]interface{})["count"])
}
