package audit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dev-mohitbeniwal/semble/model"
)

func newTestRepository(t *testing.T, handler http.HandlerFunc) *ElasticsearchRepository {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return NewElasticsearchRepositoryWithClient(client, "")
}

func TestLogDecision(t *testing.T) {
	var path string
	var body []byte
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	})

	svc := NewService(repo, testclock.NewClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)))
	err := svc.LogDecision(context.Background(), PermissionAuditLog{
		UserID:        "u-1",
		Resource:      "patients",
		Operation:     model.OperationRead,
		AccessGranted: true,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(path, "/"+DefaultIndex+"/_doc/"), path)
	assert.Equal(t, "u-1", gjson.GetBytes(body, "user_id").String())
	assert.Equal(t, "2024-03-01T09:00:00Z", gjson.GetBytes(body, "timestamp").String())
	assert.NotEmpty(t, gjson.GetBytes(body, "id").String())
}

func TestLogDecision_Error(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"mapper_parsing_exception"}`)
	})

	err := repo.LogDecision(context.Background(), PermissionAuditLog{UserID: "u-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error indexing audit document")
}

func TestQueryDecisions(t *testing.T) {
	var query map[string]any
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+DefaultIndex+"/_search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&query))
		_, _ = io.WriteString(w, `{"hits":{"hits":[
			{"_source":{"id":"a","user_id":"u-1","resource":"patients","operation":"read","access_granted":true}},
			{"_source":{"id":"b","user_id":"u-1","resource":"patients","operation":"delete","access_granted":false}}
		]}}`)
	})

	logs, err := repo.QueryDecisions(context.Background(), DecisionQuery{UserID: "u-1", Resource: "patients"})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.True(t, logs[0].AccessGranted)
	assert.Equal(t, model.OperationDelete, logs[1].Operation)

	must := query["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	assert.Len(t, must, 2)
	assert.EqualValues(t, 100, query["size"])
}
