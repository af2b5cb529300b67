// service/query_transport.go
package service

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/model"
)

type graphQLRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

type graphQLResponse struct {
	Data       json.RawMessage      `json:"data"`
	Errors     []model.GraphQLError `json:"errors"`
	Extensions map[string]any       `json:"extensions"`
}

const maxErrorBody = 512

// executeWithRetry performs the request until it succeeds, fails with a
// non-retryable error or exhausts retries. The n-th retry waits
// min(InitialDelay*BackoffMultiplier^n, MaxDelay).
func (s *SembleQueryService) executeWithRetry(ctx context.Context, creds *model.ExtendedCredentials, req graphQLRequest, timeout time.Duration, retries model.RetryConfig) (*model.QueryResult, error) {
	b := newBackOff(retries)
	retryable := make([]semble_errors.Code, len(retries.RetryableErrors))
	for i, c := range retries.RetryableErrors {
		retryable[i] = semble_errors.Code(c)
	}

	for retryCount := 0; ; retryCount++ {
		result, err := s.doRequest(ctx, creds, req, timeout)
		if err == nil {
			result.Metadata.RetryCount = retryCount
			return result, nil
		}
		if retryCount >= retries.MaxAttempts || !semble_errors.IsRetryable(err, retryable) || ctx.Err() != nil {
			return nil, err
		}

		delay := b.NextBackOff()
		s.metrics.QueryRetry(string(semble_errors.CodeOf(err)))
		logger.Warn("Retrying GraphQL request",
			zap.Int("attempt", retryCount+1),
			zap.Int("maxAttempts", retries.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, semble_errors.NewNetworkError(semble_errors.CodeTimeout,
				"request cancelled while waiting to retry", ctx.Err())
		case <-s.clock.After(delay):
		}
	}
}

func newBackOff(cfg model.RetryConfig) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          cfg.BackoffMultiplier,
		MaxInterval:         cfg.MaxDelay,
	}
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	}
	b.Reset()
	return b
}

// doRequest performs a single POST of req and maps the outcome onto the
// error taxonomy.
func (s *SembleQueryService) doRequest(ctx context.Context, creds *model.ExtendedCredentials, req graphQLRequest, timeout time.Duration) (*model.QueryResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, semble_errors.NewValidationError(semble_errors.CodeValidationFailed,
			fmt.Sprintf("variables cannot be encoded: %v", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	requestID := uuid.NewString()
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.endpoint(creds), bytes.NewReader(body))
	if err != nil {
		return nil, semble_errors.NewNetworkError(semble_errors.CodeNetworkError, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", s.cfg.UserAgent)
	httpReq.Header.Set("X-Request-ID", requestID)
	if creds.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+creds.Token)
	}
	if creds.APIKey != "" {
		httpReq.Header.Set("X-API-Key", creds.APIKey)
	}
	if s.cfg.UseCompression {
		httpReq.Header.Set("Accept-Encoding", "gzip, deflate")
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, semble_errors.NewNetworkError(semble_errors.CodeTimeout,
				fmt.Sprintf("request timed out after %s", timeout), err).
				WithContext("requestId", requestID)
		}
		return nil, semble_errors.NewNetworkError(semble_errors.CodeNetworkError,
			"request to Semble API failed", err).
			WithContext("requestId", requestID)
	}
	defer resp.Body.Close()

	raw, err := readBody(resp)
	if err != nil {
		return nil, semble_errors.NewNetworkError(semble_errors.CodeNetworkError,
			"failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, raw).WithContext("requestId", requestID)
	}

	var payload graphQLResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, semble_errors.NewAPIError(semble_errors.CodeGraphQLError,
			"response is not valid GraphQL JSON", err).
			WithContext("requestId", requestID)
	}

	if s.cfg.ValidateResponses {
		if err := authErrorFrom(payload.Errors); err != nil {
			return nil, err
		}
	}

	result := &model.QueryResult{
		Data:       payload.Data,
		Errors:     payload.Errors,
		Extensions: payload.Extensions,
		Metadata: model.QueryMetadata{
			RequestID:     requestID,
			OperationName: req.OperationName,
		},
	}
	applyRateLimitHeaders(&result.Metadata, resp.Header)
	return result, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}
	return io.ReadAll(r)
}

// statusError maps a non-2xx HTTP status.
func statusError(status int, body []byte) *semble_errors.SembleError {
	snippet := string(body)
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody]
	}
	msg := fmt.Sprintf("Semble API returned HTTP %d", status)

	var err *semble_errors.SembleError
	switch {
	case status == http.StatusUnauthorized:
		err = semble_errors.NewAuthError(semble_errors.CodeUnauthorized, msg)
	case status == http.StatusForbidden:
		err = semble_errors.NewAuthError(semble_errors.CodeForbidden, msg)
	case status == http.StatusNotFound:
		err = semble_errors.NewAPIError(semble_errors.CodeNotFound, msg, nil)
	case status == http.StatusUnprocessableEntity:
		err = semble_errors.NewValidationError(semble_errors.CodeValidationFailed, msg)
	case status == http.StatusTooManyRequests:
		err = semble_errors.NewAPIError(semble_errors.CodeRateLimitExceeded, msg, nil)
	case status >= 500:
		err = semble_errors.NewNetworkError(semble_errors.CodeServerError, msg, nil)
	default:
		err = semble_errors.NewAPIError(semble_errors.CodeHTTPError, msg, nil)
	}
	return err.WithContext("status", status).WithContext("body", snippet)
}

// authErrorFrom escalates GraphQL errors whose extensions carry an
// authentication or authorization code. Other GraphQL errors are returned
// to the caller inside the result.
func authErrorFrom(errs []model.GraphQLError) error {
	for _, e := range errs {
		code, _ := e.Extensions["code"].(string)
		switch strings.ToUpper(code) {
		case "UNAUTHENTICATED", "UNAUTHORIZED":
			return semble_errors.NewAuthError(semble_errors.CodeUnauthorized, e.Message).
				WithContext("path", e.Path)
		case "FORBIDDEN":
			return semble_errors.NewAuthError(semble_errors.CodeForbidden, e.Message).
				WithContext("path", e.Path)
		}
	}
	return nil
}

func applyRateLimitHeaders(meta *model.QueryMetadata, h http.Header) {
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			meta.RateLimitRemaining = &n
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			reset := time.Unix(secs, 0).UTC()
			meta.RateLimitReset = &reset
		}
	}
}
