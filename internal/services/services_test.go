package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/isdelr/chirp-be/internal/apperr"
	"github.com/isdelr/chirp-be/internal/database/dbtest"
	"github.com/isdelr/chirp-be/internal/models"
	"github.com/isdelr/chirp-be/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// env wires the services over one in-memory database. Fan-out is driven
// synchronously through the dispatcher.
type env struct {
	db            *sql.DB
	users         *UserService
	posts         *PostService
	follows       *FollowService
	fanout        *FanoutService
	notifications *NotificationService
	dispatcher    *outbox.Dispatcher
	clock         *skewClock
}

// skewClock runs ahead of the wall clock so retry backoffs can be skipped.
type skewClock struct {
	mu   sync.Mutex
	skew time.Duration
}

func (c *skewClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().UTC().Add(c.skew)
}

func (c *skewClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skew += d
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := dbtest.Open(t)
	fanout := NewFanoutService(db)
	clock := &skewClock{}
	dispatcher, err := outbox.NewDispatcher(db, fanout, nil, outbox.Options{Now: clock.Now})
	require.NoError(t, err)

	return &env{
		db:            db,
		users:         NewUserService(db),
		posts:         NewPostService(db, dispatcher),
		follows:       NewFollowService(db, dispatcher),
		fanout:        fanout,
		notifications: NewNotificationService(db),
		dispatcher:    dispatcher,
		clock:         clock,
	}
}

func (e *env) signup(t *testing.T, name, email string) models.User {
	t.Helper()
	u, err := e.users.Signup(context.Background(), SignupInput{Name: name, Email: email, Password: "secret123"})
	require.NoError(t, err)
	return u
}

func (e *env) drain(t *testing.T) {
	t.Helper()
	_, err := e.dispatcher.ProcessPending(context.Background())
	require.NoError(t, err)
}

func requireKind(t *testing.T, err error, kind apperr.Kind, message string, status int) {
	t.Helper()
	appErr, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %v", err)
	assert.Equal(t, kind, appErr.Kind)
	assert.Equal(t, message, appErr.Message)
	assert.Equal(t, status, appErr.HTTPStatus())
}
