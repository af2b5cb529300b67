// model/query.go
package model

import (
	"encoding/json"
	"time"
)

// RateLimitConfig bounds outbound GraphQL requests.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"maxRequests" json:"maxRequests" validate:"gte=0"`
	Window      time.Duration `mapstructure:"window" json:"window" validate:"gte=0"`
	Delay       time.Duration `mapstructure:"delay" json:"delay" validate:"gte=0"`
}

// RetryConfig controls the exponential backoff applied to retryable errors.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"maxAttempts" json:"maxAttempts" validate:"gte=0"`
	InitialDelay      time.Duration `mapstructure:"initialDelay" json:"initialDelay" validate:"gte=0"`
	MaxDelay          time.Duration `mapstructure:"maxDelay" json:"maxDelay" validate:"gte=0"`
	BackoffMultiplier float64       `mapstructure:"backoffMultiplier" json:"backoffMultiplier" validate:"gte=0"`
	RetryableErrors   []string      `mapstructure:"retryableErrors" json:"retryableErrors"`
}

// QueryConfig configures a SembleQueryService.
type QueryConfig struct {
	BaseURL           string          `mapstructure:"baseURL" json:"baseURL" validate:"omitempty,url"`
	Timeout           time.Duration   `mapstructure:"timeout" json:"timeout" validate:"gte=0"`
	Retries           RetryConfig     `mapstructure:"retries" json:"retries"`
	RateLimit         RateLimitConfig `mapstructure:"rateLimit" json:"rateLimit"`
	ValidateResponses bool            `mapstructure:"validateResponses" json:"validateResponses"`
	UseCompression    bool            `mapstructure:"useCompression" json:"useCompression"`
	UserAgent         string          `mapstructure:"userAgent" json:"userAgent"`
	MaxPages          int             `mapstructure:"maxPages" json:"maxPages" validate:"gte=0"`
}

// DefaultQueryConfig returns the query defaults.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		BaseURL: "https://open.semble.io",
		Timeout: 30 * time.Second,
		Retries: RetryConfig{
			MaxAttempts:       3,
			InitialDelay:      time.Second,
			MaxDelay:          10 * time.Second,
			BackoffMultiplier: 2,
			RetryableErrors:   []string{"RATE_LIMIT_EXCEEDED", "SERVER_ERROR", "TIMEOUT", "NETWORK_ERROR"},
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 100,
			Window:      time.Minute,
		},
		ValidateResponses: true,
		UserAgent:         "semble-go/1.0",
		MaxPages:          100,
	}
}

// QueryOptions adjusts one ExecuteQuery call.
type QueryOptions struct {
	Timeout       time.Duration
	Retries       *RetryConfig
	OperationName string
}

// QueryBuilder describes a document assembled by BuildQuery.
type QueryBuilder struct {
	Resource   string         `json:"resource" binding:"required"`
	Operation  string         `json:"operation"`
	Fields     []string       `json:"fields" binding:"required"`
	Variables  map[string]any `json:"variables,omitempty"`
	Fragments  []string       `json:"fragments,omitempty"`
	Directives []string       `json:"directives,omitempty"`
}

// GraphQLErrorLocation points into the query document.
type GraphQLErrorLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLError is one entry of a response's errors array.
type GraphQLError struct {
	Message    string                 `json:"message"`
	Locations  []GraphQLErrorLocation `json:"locations,omitempty"`
	Path       []any                  `json:"path,omitempty"`
	Extensions map[string]any         `json:"extensions,omitempty"`
}

// QueryMetadata describes how a result was obtained.
type QueryMetadata struct {
	ExecutionTime      time.Duration `json:"executionTime"`
	RetryCount         int           `json:"retryCount"`
	FromCache          bool          `json:"fromCache"`
	RateLimitRemaining *int          `json:"rateLimitRemaining,omitempty"`
	RateLimitReset     *time.Time    `json:"rateLimitReset,omitempty"`
	RequestID          string        `json:"requestId,omitempty"`
	OperationName      string        `json:"operationName,omitempty"`
}

// QueryResult is the outcome of ExecuteQuery.
type QueryResult struct {
	Data       json.RawMessage `json:"data"`
	Errors     []GraphQLError  `json:"errors,omitempty"`
	Extensions map[string]any  `json:"extensions,omitempty"`
	Metadata   QueryMetadata   `json:"metadata"`
}

// Decode unmarshals the data payload into v.
func (r *QueryResult) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// RateLimitState is a snapshot of the sliding window.
type RateLimitState struct {
	Requests  []time.Time `json:"requests"`
	Remaining int         `json:"remaining"`
	ResetTime time.Time   `json:"resetTime"`
}
