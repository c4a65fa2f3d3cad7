package centralhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/taskbridge/internal/connector"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{
		URL:        srv.URL,
		Workbasket: "GPK_KSC",
		Classifier: "T6310",
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestListClaimedCandidates(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tasks", r.URL.Path)
		require.Equal(t, "CLAIMED", r.URL.Query().Get("callbackState"))
		_ = json.NewEncoder(w).Encode([]centralTask{
			{TaskID: "c-1", ExternalID: "t-1", SystemURL: "http://bpm:8080", Assignee: "erika", CallbackState: "CLAIMED"},
		})
	}))

	tasks, err := c.ListClaimedCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "c-1", tasks[0].CentralID)
	assert.Equal(t, "t-1", tasks[0].ExternalID)
	assert.Equal(t, "erika", tasks[0].Assignee)
	assert.Equal(t, connector.CallbackStateClaimed, tasks[0].CallbackState)
}

func TestListCompletedCandidates_WindowFilter(t *testing.T) {
	var gotState, gotAfter string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotState = r.URL.Query().Get("callbackState")
		gotAfter = r.URL.Query().Get("completedAfter")
		_, _ = w.Write([]byte(`[]`))
	}))

	since := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := c.ListCompletedCandidates(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE_PENDING", gotState)
	assert.Equal(t, "2024-05-01T12:00:00Z", gotAfter)
}

func TestConvert_MapsAndStampsRouting(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	req, err := c.Convert(connector.ExternalTask{
		ID:        "t-1",
		SystemURL: "http://bpm:8080",
		Name:      "approve invoice",
		Variables: `{"amount":250}`,
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", req.ExternalID)
	assert.Equal(t, "http://bpm:8080", req.SystemURL)
	assert.Equal(t, "approve invoice", req.Name)
	assert.Equal(t, "GPK_KSC", req.Workbasket)
	assert.Equal(t, "T6310", req.Classifier)
	assert.Equal(t, `{"amount":250}`, req.Variables)
}

func TestConvert_MissingNameFails(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())

	_, err := c.Convert(connector.ExternalTask{ID: "t-1", SystemURL: "http://bpm:8080"})
	var convErr *connector.ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, "t-1", convErr.TaskID)
}

func TestCreate_ReturnsCentralID(t *testing.T) {
	var gotReq connector.CentralTaskRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/tasks", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]string{"taskId": "c-42"})
	}))

	id, err := c.Create(context.Background(), connector.CentralTaskRequest{
		ExternalID: "t-1",
		SystemURL:  "http://bpm:8080",
		Name:       "approve invoice",
	})
	require.NoError(t, err)
	assert.Equal(t, "c-42", id)
	assert.Equal(t, "t-1", gotReq.ExternalID)
}

func TestCreate_RejectionWrapsCreationError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`workbasket not found`))
	}))

	_, err := c.Create(context.Background(), connector.CentralTaskRequest{
		ExternalID: "t-1",
		SystemURL:  "http://bpm:8080",
	})
	var createErr *connector.CreationError
	require.ErrorAs(t, err, &createErr)
	assert.Equal(t, "t-1", createErr.TaskID)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.Status)
}

func TestCreate_MissingIDInResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))

	_, err := c.Create(context.Background(), connector.CentralTaskRequest{ExternalID: "t-1"})
	var createErr *connector.CreationError
	require.ErrorAs(t, err, &createErr)
}

func TestSetCallbackState_BatchesIDs(t *testing.T) {
	var got struct {
		TaskIDs []string `json:"taskIds"`
		State   string   `json:"callbackState"`
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tasks/callback-state", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.SetCallbackState(context.Background(), []string{"c-1", "c-2"}, connector.CallbackStateComplete)
	require.NoError(t, err)
	assert.Equal(t, []string{"c-1", "c-2"}, got.TaskIDs)
	assert.Equal(t, "COMPLETE", got.State)
}

func TestSetCallbackState_NoIDsIsNoop(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty id set")
	}))

	require.NoError(t, c.SetCallbackState(context.Background(), nil, connector.CallbackStateComplete))
}

func TestProvider_YieldsSingleConnector(t *testing.T) {
	provider := Provider(Options{URL: "https://central.example.com"})
	connectors, err := provider()
	require.NoError(t, err)
	require.Len(t, connectors, 1)
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}
