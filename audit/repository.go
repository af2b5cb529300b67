// audit/repository.go
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const DefaultIndex = "semble-permission-audit"

type Repository interface {
	LogDecision(ctx context.Context, log PermissionAuditLog) error
	QueryDecisions(ctx context.Context, q DecisionQuery) ([]PermissionAuditLog, error)
}

type ElasticsearchRepository struct {
	esClient *elasticsearch.Client
	index    string
}

// NewElasticsearchRepository creates a new repository with a given Elasticsearch client URL.
func NewElasticsearchRepository(esURL, index string) (*ElasticsearchRepository, error) {
	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esURL},
	})
	if err != nil {
		return nil, err
	}
	return NewElasticsearchRepositoryWithClient(esClient, index), nil
}

func NewElasticsearchRepositoryWithClient(client *elasticsearch.Client, index string) *ElasticsearchRepository {
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticsearchRepository{esClient: client, index: index}
}

// LogDecision indexes one decision. A missing ID is generated.
func (r *ElasticsearchRepository) LogDecision(ctx context.Context, log PermissionAuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	data, err := json.Marshal(log)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      r.index,
		DocumentID: log.ID,
		Body:       bytes.NewReader(data),
	}

	res, err := req.Do(ctx, r.esClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing audit document: %s", res.String())
	}
	return nil
}

func (q DecisionQuery) body() map[string]any {
	must := []any{}
	if !q.From.IsZero() || !q.To.IsZero() {
		rng := map[string]any{}
		if !q.From.IsZero() {
			rng["gte"] = q.From.Format(time.RFC3339)
		}
		if !q.To.IsZero() {
			rng["lte"] = q.To.Format(time.RFC3339)
		}
		must = append(must, map[string]any{"range": map[string]any{"timestamp": rng}})
	}
	if q.UserID != "" {
		must = append(must, map[string]any{"term": map[string]any{"user_id": q.UserID}})
	}
	if q.Resource != "" {
		must = append(must, map[string]any{"term": map[string]any{"resource": q.Resource}})
	}

	size := q.Size
	if size <= 0 {
		size = 100
	}
	return map[string]any{
		"size":  size,
		"sort":  []any{map[string]any{"timestamp": map[string]any{"order": "desc"}}},
		"query": map[string]any{"bool": map[string]any{"must": must}},
	}
}

// QueryDecisions searches decisions newest first.
func (r *ElasticsearchRepository) QueryDecisions(ctx context.Context, q DecisionQuery) ([]PermissionAuditLog, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(q.body()); err != nil {
		return nil, err
	}

	res, err := r.esClient.Search(
		r.esClient.Search.WithContext(ctx),
		r.esClient.Search.WithIndex(r.index),
		r.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error searching audit documents: %s", res.String())
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	var logs []PermissionAuditLog
	var decodeErr error
	gjson.GetBytes(raw, "hits.hits.#._source").ForEach(func(_, src gjson.Result) bool {
		var log PermissionAuditLog
		if err := json.Unmarshal([]byte(src.Raw), &log); err != nil {
			decodeErr = err
			return false
		}
		logs = append(logs, log)
		return true
	})
	if decodeErr != nil {
		return nil, fmt.Errorf("error decoding audit documents: %w", decodeErr)
	}
	return logs, nil
}
