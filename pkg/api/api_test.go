package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangelabs/rangecloud/internal/cli/health"
	"github.com/rangelabs/rangecloud/pkg/models"
)

// echoResolver records the resolved action and answers with an echo.
type echoResolver struct {
	last     models.Action
	lastFrom string
	err      error
}

func (r *echoResolver) Resolve(_ context.Context, action models.Action, from string) (models.Action, error) {
	r.last = action
	r.lastFrom = from
	if r.err != nil {
		return models.Action{}, r.err
	}
	return *action.Reply(action.Data, models.ErrorNone), nil
}

type stubValidator struct {
	resourceName string
	content      string
	ok           bool
}

func (v *stubValidator) ValidateToken(resourceName, content string) bool {
	v.resourceName = resourceName
	v.content = content
	return v.ok
}

func postAction(t *testing.T, server *httptest.Server, action models.Action, headers map[string]string) *http.Response {
	t.Helper()

	raw, err := json.Marshal(action)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/v1/actions", bytes.NewReader(raw))
	require.NoError(t, err)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeAction(t *testing.T, resp *http.Response) models.Action {
	t.Helper()
	defer resp.Body.Close()

	var action models.Action
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&action))
	return action
}

func newTestServer(t *testing.T, cfg RouterConfig, resolver Resolver, tokens TokenValidator) *httptest.Server {
	t.Helper()

	if cfg.RateLimitPerSecond == 0 {
		cfg.RateLimitPerSecond = 100
	}
	server := httptest.NewServer(NewRouter(cfg, resolver, tokens))
	t.Cleanup(server.Close)
	return server
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, RouterConfig{Listener: "public"}, &echoResolver{}, &stubValidator{})

	resp, err := server.Client().Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body health.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "rangecloud", body.Data.Service)
	assert.NotEmpty(t, body.Data.StartedAt)
}

func TestPublicListenerDemotesAnonymousRequests(t *testing.T) {
	resolver := &echoResolver{}
	server := newTestServer(t, RouterConfig{Listener: "public"}, resolver, &stubValidator{})

	resp := postAction(t, server, models.Action{Executor: "root", Name: models.ActionTest, Data: "hi"}, nil)
	reply := decodeAction(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hi", reply.Data)
	// The claimed executor is discarded without credentials.
	assert.Empty(t, resolver.last.Executor)
	assert.True(t, strings.HasPrefix(resolver.lastFrom, models.GuestUserName+"@"), resolver.lastFrom)
}

func TestPublicListenerAcceptsValidBearer(t *testing.T) {
	resolver := &echoResolver{}
	tokens := &stubValidator{ok: true}
	server := newTestServer(t, RouterConfig{Listener: "public"}, resolver, tokens)

	resp := postAction(t, server,
		models.Action{Executor: "alice", Name: models.ActionTest},
		map[string]string{"Authorization": "Bearer secret-token"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", resolver.last.Executor)
	assert.Equal(t, "alice", tokens.resourceName)
	assert.Equal(t, "secret-token", tokens.content)
	assert.True(t, strings.HasPrefix(resolver.lastFrom, "alice@"), resolver.lastFrom)
}

func TestPublicListenerRejectsInvalidBearer(t *testing.T) {
	server := newTestServer(t, RouterConfig{Listener: "public"}, &echoResolver{}, &stubValidator{ok: false})

	resp := postAction(t, server,
		models.Action{Executor: "alice", Name: models.ActionTest},
		map[string]string{"Authorization": "Bearer wrong"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPublicListenerRejectsBearerWithoutExecutor(t *testing.T) {
	server := newTestServer(t, RouterConfig{Listener: "public"}, &echoResolver{}, &stubValidator{ok: true})

	resp := postAction(t, server,
		models.Action{Name: models.ActionTest},
		map[string]string{"Authorization": "Bearer secret-token"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPrivateListenerTrustsExecutor(t *testing.T) {
	resolver := &echoResolver{}
	server := newTestServer(t, RouterConfig{Listener: "private", TrustExecutor: true}, resolver, &stubValidator{})

	resp := postAction(t, server, models.Action{Executor: "root", Name: models.ActionStatistics}, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "root", resolver.last.Executor)
}

func TestMalformedPayloadRejected(t *testing.T) {
	server := newTestServer(t, RouterConfig{Listener: "public"}, &echoResolver{}, &stubValidator{})

	resp, err := server.Client().Post(server.URL+"/api/v1/actions", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequestIDBackfillsActionID(t *testing.T) {
	resolver := &echoResolver{}
	server := newTestServer(t, RouterConfig{Listener: "public"}, resolver, &stubValidator{})

	resp := postAction(t, server, models.Action{Name: models.ActionTest}, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resolver.last.ID)
}

func TestResolverFailureMapsToServiceUnavailable(t *testing.T) {
	resolver := &echoResolver{err: fmt.Errorf("dispatcher stopped")}
	server := newTestServer(t, RouterConfig{Listener: "public"}, resolver, &stubValidator{})

	resp := postAction(t, server, models.Action{Name: models.ActionTest}, nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRateLimitReturns429(t *testing.T) {
	server := newTestServer(t,
		RouterConfig{Listener: "public", RateLimitPerSecond: 1},
		&echoResolver{}, &stubValidator{})

	first := postAction(t, server, models.Action{Name: models.ActionTest}, nil)
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	var limited bool
	for i := 0; i < 5; i++ {
		resp := postAction(t, server, models.Action{Name: models.ActionTest}, nil)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "expected a 429 once the bucket drained")
}
