package security

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(limit int) (*RateLimiter, redismock.ClientMock) {
	client, mock := redismock.NewClientMock()
	rl := NewRateLimiter(client, limit)
	rl.identify = func(e *core.RequestEvent) string { return "ip:10.0.0.1" }
	return rl, mock
}

func newEvent(userAgent string) *core.RequestEvent {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkin", nil)
	req.Header.Set("User-Agent", userAgent)
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = httptest.NewRecorder()
	return e
}

func TestMiddleware_LimitsPerWindow(t *testing.T) {
	rl, mock := newTestLimiter(2)
	mw := rl.Middleware("checkin")
	key := "ratelimit:checkin:ip:10.0.0.1"

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)
	mock.ExpectIncr(key).SetVal(2)
	mock.ExpectIncr(key).SetVal(3)

	assert.NoError(t, mw(newEvent("Mozilla/5.0")))
	assert.NoError(t, mw(newEvent("Mozilla/5.0")))

	err := mw(newEvent("Mozilla/5.0"))
	var apiErr *router.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_BlocksBots(t *testing.T) {
	rl, mock := newTestLimiter(10)

	err := rl.Middleware("checkin")(newEvent("FriendlyCrawler/2.1"))
	var apiErr *router.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_FailsOpen(t *testing.T) {
	rl, mock := newTestLimiter(1)

	mock.ExpectIncr("ratelimit:checkin:ip:10.0.0.1").SetErr(errors.New("connection refused"))

	assert.NoError(t, rl.Middleware("checkin")(newEvent("Mozilla/5.0")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequester(t *testing.T) {
	e := newEvent("Mozilla/5.0")
	e.Auth = core.NewRecord(core.NewAuthCollection("users"))
	e.Auth.Id = "u1"

	assert.Equal(t, "user:u1", requester(e))
}
