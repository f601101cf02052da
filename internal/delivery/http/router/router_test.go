package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"spot/config"
	"spot/internal/delivery/http/middleware"
	"spot/internal/delivery/http/router/handler"
	"spot/internal/delivery/http/validator"
	"spot/internal/infra/kv"
	"spot/internal/infra/registry"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "test-admin-secret"

// newTestServer wires echo the way the registry server does, against an
// in-memory store.
func newTestServer(t *testing.T) (*echo.Echo, *registry.Store) {
	t.Helper()

	store := registry.NewStore(kv.NewMemoryStore())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		Registry: &config.RegistryConfig{
			AllowedOrigins: "https://spot.utilitarian.io,https://spot.local.test",
			AdminToken:     testAdminToken,
		},
	}

	e := echo.New()
	e.Validator = validator.New()
	e.Use(middleware.NewCORSMiddleware(cfg).Handle)
	e.HTTPErrorHandler = middleware.NewErrorMiddleware(logger).HandleHTTPError

	r := NewRouter(RouterParams{
		SubscriptionHandler: handler.NewSubscriptionHandler(handler.SubscriptionHandlerParams{
			Subscriptions: store,
			Logger:        logger,
		}),
		CursorHandler: handler.NewCursorHandler(handler.CursorHandlerParams{
			Cursors: store,
			Logger:  logger,
		}),
		HealthHandler:   handler.NewHealthHandler(),
		AdminMiddleware: middleware.NewAdminMiddleware(cfg),
	})
	r.RegisterRoutes(e)

	return e, store
}

func doJSON(e *echo.Echo, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for key, value := range header {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body.Error
}

const validSubscribeBody = `{
	"subscription": {
		"endpoint": "https://push.example/ep-1",
		"keys": {"p256dh": "BPu5kPYZb0xMLq5Yyr0Y7Qw", "auth": "8eDyX1Y"}
	},
	"zone": "se3"
}`

func TestSubscribe_Created(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/subscribe", validSubscribeBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var reply struct {
		ID   string `json:"id"`
		Zone string `json:"zone"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Len(t, reply.ID, 64)
	assert.Equal(t, "SE3", reply.Zone, "zone is stored upper-cased")
}

func TestSubscribe_InvalidPayload(t *testing.T) {
	e, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `not json at all`},
		{name: "missing zone", body: `{"subscription":{"endpoint":"https://push.example/e","keys":{"p256dh":"k","auth":"a"}}}`},
		{name: "malformed zone", body: `{"subscription":{"endpoint":"https://push.example/e","keys":{"p256dh":"k","auth":"a"}},"zone":"S E 3"}`},
		{name: "missing endpoint", body: `{"subscription":{"keys":{"p256dh":"k","auth":"a"}},"zone":"SE3"}`},
		{name: "missing keys", body: `{"subscription":{"endpoint":"https://push.example/e"},"zone":"SE3"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(e, http.MethodPost, "/subscribe", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_payload", errorKind(t, rec))
		})
	}
}

func TestUnsubscribe_IdempotentAndMissingID(t *testing.T) {
	e, store := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/subscribe", validSubscribeBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var reply struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))

	rec = doJSON(e, http.MethodDelete, "/subscribe/"+reply.ID, "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Repeating the delete still succeeds.
	rec = doJSON(e, http.MethodDelete, "/subscribe/"+reply.ID, "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	subs, err := store.ListByZone(context.Background(), "SE3")
	require.NoError(t, err)
	assert.Empty(t, subs)

	rec = doJSON(e, http.MethodDelete, "/subscribe", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_id", errorKind(t, rec))
}

func TestAdminSubs_RequiresBearer(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/admin/subs?zone=SE3", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorKind(t, rec))

	rec = doJSON(e, http.MethodGet, "/admin/subs?zone=SE3", "", map[string]string{
		"Authorization": "Bearer wrong-token",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodGet, "/admin/subs?zone=SE3", "", map[string]string{
		"Authorization": "Bearer " + testAdminToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAdminSubs_InvalidZone(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/admin/subs?zone=b!ad", "", map[string]string{
		"Authorization": "Bearer " + testAdminToken,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_zone", errorKind(t, rec))
}

func TestAdminCursor_RoundTrip(t *testing.T) {
	e, _ := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer " + testAdminToken}

	rec := doJSON(e, http.MethodGet, "/admin/ts/SE3", "", auth)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorKind(t, rec))

	rec = doJSON(e, http.MethodPut, "/admin/ts/se3", `{"timestamp":"2024-05-03T10:00:00Z"}`, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"zone":"SE3","timestamp":"2024-05-03T10:00:00Z"}`, rec.Body.String())

	rec = doJSON(e, http.MethodGet, "/admin/ts/SE3", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"zone":"SE3","timestamp":"2024-05-03T10:00:00Z"}`, rec.Body.String())
}

func TestAdminCursor_InvalidTimestamp(t *testing.T) {
	e, _ := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer " + testAdminToken}

	for _, body := range []string{`{"timestamp":""}`, `{}`, `{"timestamp":42}`} {
		rec := doJSON(e, http.MethodPut, "/admin/ts/SE3", body, auth)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
		assert.Equal(t, "invalid_timestamp", errorKind(t, rec))
	}
}

func TestCORS_DisallowedOriginRejectedBeforeHandlers(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/subscribe", validSubscribeBody, map[string]string{
		echo.HeaderOrigin: "https://evil.example",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorKind(t, rec))
}

func TestCORS_AllowedOriginEchoedBack(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/subscribe", validSubscribeBody, map[string]string{
		echo.HeaderOrigin: "https://spot.local.test",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "https://spot.local.test", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestCORS_Preflight(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodOptions, "/subscribe", "", map[string]string{
		echo.HeaderOrigin: "https://spot.local.test",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), "POST")
}

func TestCORS_NoOriginPasses(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/admin/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_NoAuthRequired(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/admin/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.NotEmpty(t, body.Timestamp)
}
