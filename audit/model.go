// audit/model.go
package audit

import (
	"time"

	"github.com/dev-mohitbeniwal/semble/model"
)

// PermissionAuditLog records one permission decision.
type PermissionAuditLog struct {
	ID               string                `json:"id"`
	Timestamp        time.Time             `json:"timestamp"`
	UserID           string                `json:"user_id"`
	Resource         string                `json:"resource"`
	Operation        model.Operation       `json:"operation"`
	Fields           []string              `json:"fields,omitempty"`
	AccessGranted    bool                  `json:"access_granted"`
	PermissionLevel  model.PermissionLevel `json:"permission_level"`
	RestrictedFields []string              `json:"restricted_fields,omitempty"`
	AdminBypass      bool                  `json:"admin_bypass"`
	CacheHit         bool                  `json:"cache_hit"`
	Reason           string                `json:"reason,omitempty"`
}

// DecisionQuery filters QueryDecisions. Empty strings match everything.
type DecisionQuery struct {
	From     time.Time
	To       time.Time
	UserID   string
	Resource string
	Size     int
}
