package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/invites/internal/clock"
	"github.com/smallbiznis/invites/internal/config"
	"github.com/smallbiznis/invites/internal/invite/code"
	invitedomain "github.com/smallbiznis/invites/internal/invite/domain"
	"github.com/smallbiznis/invites/internal/invite/repository"
	"github.com/smallbiznis/invites/internal/invite/service"
	"github.com/smallbiznis/invites/internal/kv"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	srv   *Server
	clock *clock.FakeClock
	store kv.Store
}

type testOption func(*config.Config)

func withAPIKey(key string) testOption {
	return func(cfg *config.Config) { cfg.APIKey = key }
}

func withUIFile(path string) testOption {
	return func(cfg *config.Config) { cfg.UIFile = path }
}

func newTestServer(t *testing.T, opts ...testOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{Environment: "test"}
	for _, opt := range opts {
		opt(&cfg)
	}

	store, err := kv.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gen, err := code.NewGenerator("ulid", 0)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := service.New(service.Params{
		Log:   zap.NewNop(),
		Repo:  repository.New(store),
		Codes: gen,
		Clock: fake,
	})

	srv := NewServer(ServerParams{
		Gin:       NewEngine(cfg, nil),
		Cfg:       cfg,
		Auth:      config.NewStaticAuthConfig(cfg.APIKey),
		InviteSvc: svc,
		Log:       zap.NewNop(),
	})
	srv.RegisterRoutes()
	return &testServer{srv: srv, clock: fake, store: store}
}

func (ts *testServer) do(t *testing.T, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

// create stores an invite with the given code, advancing the clock first so
// creation times are distinct.
func (ts *testServer) create(t *testing.T, code string) invitedomain.Invite {
	t.Helper()
	ts.clock.Advance(time.Millisecond)
	rec := ts.do(t, http.MethodPost, "/v1/invites", map[string]string{"code": code})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var invite invitedomain.Invite
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &invite))
	return invite
}

type errorBody struct {
	Error   string            `json:"error"`
	Details []ValidationError `json:"details"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}
