// audit/service.go
package audit

import (
	"context"

	"github.com/juju/clock"
	"go.uber.org/zap"

	logger "github.com/dev-mohitbeniwal/semble/logging"
)

type Service interface {
	LogDecision(ctx context.Context, log PermissionAuditLog) error
	QueryDecisions(ctx context.Context, q DecisionQuery) ([]PermissionAuditLog, error)
}

type service struct {
	repo  Repository
	clock clock.Clock
}

func NewService(repo Repository, clk clock.Clock) Service {
	if clk == nil {
		clk = clock.WallClock
	}
	return &service{repo: repo, clock: clk}
}

// LogDecision stamps log with the current time when unset.
func (s *service) LogDecision(ctx context.Context, log PermissionAuditLog) error {
	if log.Timestamp.IsZero() {
		log.Timestamp = s.clock.Now()
	}
	if err := s.repo.LogDecision(ctx, log); err != nil {
		logger.Error("Failed to record permission decision",
			zap.String("resource", log.Resource),
			zap.String("userID", log.UserID),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *service) QueryDecisions(ctx context.Context, q DecisionQuery) ([]PermissionAuditLog, error) {
	return s.repo.QueryDecisions(ctx, q)
}
