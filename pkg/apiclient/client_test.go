package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangelabs/rangecloud/internal/cli/health"
	"github.com/rangelabs/rangecloud/pkg/models"
)

// newStubServer answers /api/v1/actions with handle and records the
// last request.
func newStubServer(t *testing.T, handle func(models.Action) models.Action) (*Client, *models.Action, *http.Request) {
	t.Helper()

	var lastAction models.Action
	var lastRequest http.Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			resp := health.Response{Status: "healthy"}
			resp.Data.Service = "rangecloud"
			resp.Data.Uptime = "1m0s"
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		lastRequest = *r.Clone(r.Context())

		var action models.Action
		require.NoError(t, json.NewDecoder(r.Body).Decode(&action))
		lastAction = action

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handle(action))
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL, Executor: "alice", Token: "tok-1"})
	require.NoError(t, err)
	return client, &lastAction, &lastRequest
}

func TestResolveSendsExecutorAndBearer(t *testing.T) {
	client, lastAction, lastRequest := newStubServer(t, func(a models.Action) models.Action {
		return *a.Reply(a.Data, models.ErrorNone)
	})

	reply, err := client.Resolve(context.Background(), models.Action{Name: models.ActionTest, Data: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "hi", reply.Data)
	assert.Equal(t, "alice", lastAction.Executor)
	assert.Equal(t, "Bearer tok-1", lastRequest.Header.Get("Authorization"))
}

func TestCallConvertsErrorReplies(t *testing.T) {
	client, _, _ := newStubServer(t, func(a models.Action) models.Action {
		return *a.ErrorReply(models.ErrorUnauthorized, "no access")
	})

	_, err := client.Call(context.Background(), models.Action{Name: models.ActionFileList})
	require.Error(t, err)

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, models.ErrorUnauthorized, actionErr.Type)
	assert.Equal(t, "no access", actionErr.Message)
	assert.True(t, IsUnauthorized(err))
}

func TestTransportErrorsBecomeAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid authentication token"}`))
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Resolve(context.Background(), models.Action{Name: models.ActionTest})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid authentication token", apiErr.Message)
	assert.True(t, IsUnauthorized(err))
}

func TestListFilesDecodesPayload(t *testing.T) {
	client, lastAction, _ := newStubServer(t, func(a models.Action) models.Action {
		payload, _ := json.Marshal(map[string]any{
			"files": []models.FileInfo{{ID: "f-1", Path: "docs/a.txt", Size: 3}},
		})
		return *a.Reply(string(payload), models.ErrorNone)
	})

	files, err := client.ListFiles(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.ActionFileList, lastAction.Name)
	require.Len(t, files, 1)
	assert.Equal(t, "f-1", files[0].ID)
	assert.Equal(t, int64(3), files[0].Size)
}

func TestRunProcessRoundTrip(t *testing.T) {
	client, lastAction, _ := newStubServer(t, func(a models.Action) models.Action {
		var req models.ProcessRequest
		_ = json.Unmarshal([]byte(a.Data), &req)
		payload, _ := json.Marshal(models.ProcessResponse{Request: req, ResponseMessage: "done"})
		return *a.Reply(string(payload), models.ErrorNone)
	})

	response, err := client.RunProcess(context.Background(), "hello-world", map[string]string{"value1": "x"})
	require.NoError(t, err)

	assert.Equal(t, models.ActionProcess, lastAction.Name)
	assert.Equal(t, "hello-world", response.Request.Name)
	assert.Equal(t, "done", response.ResponseMessage)
}

func TestHealth(t *testing.T) {
	client, _, _ := newStubServer(t, func(a models.Action) models.Action { return a })

	resp, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "rangecloud", resp.Data.Service)
}
