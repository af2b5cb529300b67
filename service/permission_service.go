// service/permission_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/dev-mohitbeniwal/semble/audit"
	"github.com/dev-mohitbeniwal/semble/cache"
	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/metrics"
	"github.com/dev-mohitbeniwal/semble/model"
	"github.com/dev-mohitbeniwal/semble/pdp/dao"
	"github.com/dev-mohitbeniwal/semble/pdp/engine"
	pdp_model "github.com/dev-mohitbeniwal/semble/pdp/model"
)

type IPermissionCheckService interface {
	TestPermissions(ctx context.Context, req model.PermissionCheckRequest) (*model.PermissionCheckResult, error)
	CheckFieldPermission(ctx context.Context, resource, field string, op model.Operation, userID string) (model.FieldPermissionResult, error)
	CheckFieldsPermissions(ctx context.Context, resource string, fields []string, op model.Operation, userID string) ([]model.FieldPermissionResult, error)
	ValidatePermissions(ctx context.Context, req model.PermissionCheckRequest) error
	HasGlobalPermission(perms *model.ResourcePermissions, op model.Operation) bool
	GetResourcePermissions(ctx context.Context, resource, userID string) (*model.ResourcePermissions, bool, error)
	ClearCache(userID string)
}

// PermissionOption customises a PermissionCheckService.
type PermissionOption func(*PermissionCheckService)

// WithPermissionCache sets the cache of record for fetched permissions.
func WithPermissionCache(c *cache.PermissionCache) PermissionOption {
	return func(s *PermissionCheckService) { s.cache = c }
}

// WithAudit records every decision.
func WithAudit(a audit.Service) PermissionOption {
	return func(s *PermissionCheckService) { s.audit = a }
}

func WithPermissionMetrics(m *metrics.Metrics) PermissionOption {
	return func(s *PermissionCheckService) { s.metrics = m }
}

func WithPermissionClock(c clock.Clock) PermissionOption {
	return func(s *PermissionCheckService) {
		if c != nil {
			s.clock = c
		}
	}
}

// PermissionCheckService answers whether a user may run an operation on a
// Semble resource.
type PermissionCheckService struct {
	cfg       model.PermissionCheckConfig
	dao       *dao.PermissionRetrievalDAO
	evaluator *engine.PermissionEvaluator
	cache     *cache.PermissionCache
	audit     audit.Service
	metrics   *metrics.Metrics
	clock     clock.Clock
}

var _ IPermissionCheckService = &PermissionCheckService{}

// NewPermissionCheckService fails with config/MISSING_DEPENDENCY when query
// is nil.
func NewPermissionCheckService(query ISembleQueryService, cfg model.PermissionCheckConfig, opts ...PermissionOption) (*PermissionCheckService, error) {
	if query == nil {
		return nil, semble_errors.NewConfigError(semble_errors.CodeMissingDependency,
			"permission checks require a query service")
	}
	s := &PermissionCheckService{
		cfg:       cfg,
		evaluator: engine.NewPermissionEvaluator(),
		clock:     clock.WallClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dao = dao.NewPermissionRetrievalDAO(query, s.clock)
	return s, nil
}

func adminPermissions(resource string, at time.Time) *model.ResourcePermissions {
	return &model.ResourcePermissions{
		Resource:         resource,
		GlobalPermission: model.PermissionAdmin,
		FieldPermissions: map[string]model.FieldPermission{},
		Operations:       model.OperationPermissions{Create: true, Read: true, Update: true, Delete: true},
		LastUpdated:      at,
	}
}

// GetResourcePermissions returns the permissions of userID on resource and
// whether they came from cache. Concurrent misses for the same key share a
// single fetch.
func (s *PermissionCheckService) GetResourcePermissions(ctx context.Context, resource, userID string) (*model.ResourcePermissions, bool, error) {
	if s.cache == nil || !s.cfg.CachePermissions {
		perms, err := s.fetch(ctx, resource, userID)
		return perms, false, err
	}

	perms, ok, err := s.cache.GetPermissions(ctx, resource, userID)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return perms, true, nil
	}

	perms, err = s.cache.RefreshEntry(ctx, cache.PermissionKey(resource, userID),
		func(ctx context.Context) (*model.ResourcePermissions, error) {
			return s.fetch(ctx, resource, userID)
		}, s.cfg.CacheTTL)
	return perms, false, err
}

// fetch asks the API. With admin bypass enabled an admin user gets full
// permissions without a permissions query; a failed admin lookup counts as
// not admin.
func (s *PermissionCheckService) fetch(ctx context.Context, resource, userID string) (*model.ResourcePermissions, error) {
	if s.cfg.AdminBypass {
		status, err := s.dao.RetrieveAdminStatus(ctx, userID)
		if err != nil {
			logger.Warn("Admin status check failed, continuing as non-admin",
				zap.String("userID", userID),
				zap.Error(err))
		} else if dao.IsAdmin(status) {
			logger.Debug("Admin bypass applied",
				zap.String("resource", resource),
				zap.String("userID", userID))
			return adminPermissions(resource, s.clock.Now()), nil
		}
	}

	perms, err := s.dao.RetrievePermissions(ctx, resource, userID)
	if err != nil {
		logger.Error("Failed to retrieve permissions",
			zap.String("resource", resource),
			zap.String("userID", userID),
			zap.Error(err))
		return nil, err
	}
	return perms, nil
}

// TestPermissions evaluates req. HasPermission reflects the operation-level
// check only; denied fields are reported in RestrictedFields.
func (s *PermissionCheckService) TestPermissions(ctx context.Context, req model.PermissionCheckRequest) (*model.PermissionCheckResult, error) {
	now := s.clock.Now()
	if !s.cfg.Enabled {
		return &model.PermissionCheckResult{
			HasPermission:     true,
			PermissionLevel:   model.PermissionAdmin,
			RestrictedFields:  []string{},
			AllowedOperations: engine.AllOperations,
			LastChecked:       now,
		}, nil
	}

	perms, cacheHit, err := s.GetResourcePermissions(ctx, req.Resource, req.UserID)
	if err != nil {
		return nil, err
	}

	decision := s.evaluator.Evaluate(&pdp_model.AccessRequest{
		UserID:    req.UserID,
		Resource:  req.Resource,
		Operation: req.Operation,
		Fields:    req.Fields,
		Timestamp: now,
	}, perms)

	result := &model.PermissionCheckResult{
		HasPermission:     decision.Allowed(),
		PermissionLevel:   decision.PermissionLevel,
		RestrictedFields:  decision.RestrictedFields,
		AllowedOperations: decision.AllowedOperations,
		LastChecked:       now,
		CacheHit:          cacheHit,
	}

	s.metrics.PermissionDecision(req.Resource, result.HasPermission)
	s.record(ctx, req, decision, cacheHit)
	return result, nil
}

func (s *PermissionCheckService) record(ctx context.Context, req model.PermissionCheckRequest, d *pdp_model.AccessDecision, cacheHit bool) {
	if s.audit == nil {
		return
	}
	err := s.audit.LogDecision(ctx, audit.PermissionAuditLog{
		Timestamp:        s.clock.Now(),
		UserID:           req.UserID,
		Resource:         req.Resource,
		Operation:        req.Operation,
		Fields:           req.Fields,
		AccessGranted:    d.Allowed(),
		PermissionLevel:  d.PermissionLevel,
		RestrictedFields: d.RestrictedFields,
		AdminBypass:      s.cfg.AdminBypass && d.PermissionLevel == model.PermissionAdmin,
		CacheHit:         cacheHit,
		Reason:           d.Reason,
	})
	if err != nil {
		logger.Warn("Permission decision not audited", zap.Error(err))
	}
}

// CheckFieldPermission checks one field. Fields without their own entry
// inherit the resource's global level.
func (s *PermissionCheckService) CheckFieldPermission(ctx context.Context, resource, field string, op model.Operation, userID string) (model.FieldPermissionResult, error) {
	results, err := s.CheckFieldsPermissions(ctx, resource, []string{field}, op, userID)
	if err != nil {
		return model.FieldPermissionResult{}, err
	}
	return results[0], nil
}

func (s *PermissionCheckService) CheckFieldsPermissions(ctx context.Context, resource string, fields []string, op model.Operation, userID string) ([]model.FieldPermissionResult, error) {
	results := make([]model.FieldPermissionResult, 0, len(fields))
	if !s.cfg.Enabled {
		for _, f := range fields {
			results = append(results, model.FieldPermissionResult{Field: f, Allowed: true, CanRead: true, CanWrite: true})
		}
		return results, nil
	}

	perms, _, err := s.GetResourcePermissions(ctx, resource, userID)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		results = append(results, s.evaluator.EvaluateField(perms, f, op))
	}
	return results, nil
}

// ValidatePermissions returns a *PermissionError when the operation is
// denied. Denied fields fail the check only in strict mode.
func (s *PermissionCheckService) ValidatePermissions(ctx context.Context, req model.PermissionCheckRequest) error {
	result, err := s.TestPermissions(ctx, req)
	if err != nil {
		return err
	}

	if !result.HasPermission {
		return &semble_errors.PermissionError{
			Resource:  req.Resource,
			Operation: string(req.Operation),
			UserID:    req.UserID,
			Reason:    fmt.Sprintf("permission level %q is insufficient", result.PermissionLevel),
		}
	}

	if len(result.RestrictedFields) > 0 {
		if s.cfg.StrictMode {
			return &semble_errors.PermissionError{
				Resource:         req.Resource,
				Operation:        string(req.Operation),
				UserID:           req.UserID,
				RestrictedFields: result.RestrictedFields,
				Reason:           "access to some fields is denied",
			}
		}
		logger.Warn("Ignoring field-level denials outside strict mode",
			zap.String("resource", req.Resource),
			zap.String("operation", string(req.Operation)),
			zap.Strings("fields", result.RestrictedFields))
	}
	return nil
}

func (s *PermissionCheckService) HasGlobalPermission(perms *model.ResourcePermissions, op model.Operation) bool {
	return s.evaluator.HasGlobalPermission(perms, op)
}

// ClearCache drops cached permissions of userID, or of everyone when userID
// is empty.
func (s *PermissionCheckService) ClearCache(userID string) {
	if s.cache == nil {
		return
	}
	if userID == "" {
		s.cache.Clear()
		logger.Info("Cleared permission cache")
		return
	}
	n := s.cache.InvalidateUser(userID)
	logger.Info("Invalidated cached permissions", zap.String("userID", userID), zap.Int("entries", n))
}
