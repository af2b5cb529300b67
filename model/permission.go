// model/permission.go
package model

import "time"

// PermissionLevel is a resource-wide access level.
type PermissionLevel string

const (
	PermissionNone  PermissionLevel = "none"
	PermissionRead  PermissionLevel = "read"
	PermissionWrite PermissionLevel = "write"
	PermissionAdmin PermissionLevel = "admin"
)

// Valid reports whether l is one of the known levels.
func (l PermissionLevel) Valid() bool {
	switch l {
	case PermissionNone, PermissionRead, PermissionWrite, PermissionAdmin:
		return true
	}
	return false
}

// Operation is an action checked against ResourcePermissions.
type Operation string

const (
	OperationRead   Operation = "read"
	OperationWrite  Operation = "write"
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// FieldPermission is the per-field access entry.
type FieldPermission struct {
	Read              bool   `json:"read"`
	Write             bool   `json:"write"`
	Required          bool   `json:"required"`
	ConditionalAccess string `json:"conditionalAccess,omitempty"`
}

// OperationPermissions lists which CRUD operations the user may run.
type OperationPermissions struct {
	Create bool `json:"create"`
	Read   bool `json:"read"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
}

// ResourcePermissions is what the permissions endpoint says a user may do
// with one resource.
type ResourcePermissions struct {
	Resource         string                     `json:"resource"`
	GlobalPermission PermissionLevel            `json:"globalPermission"`
	FieldPermissions map[string]FieldPermission `json:"fieldPermissions"`
	Operations       OperationPermissions       `json:"operations"`
	LastUpdated      time.Time                  `json:"lastUpdated"`
}

// PermissionCheckConfig configures PermissionCheckService.
type PermissionCheckConfig struct {
	Enabled          bool          `mapstructure:"enabled" json:"enabled"`
	CachePermissions bool          `mapstructure:"cachePermissions" json:"cachePermissions"`
	CacheTTL         time.Duration `mapstructure:"cacheTTL" json:"cacheTTL" validate:"gte=0"`
	StrictMode       bool          `mapstructure:"strictMode" json:"strictMode"`
	AdminBypass      bool          `mapstructure:"adminBypass" json:"adminBypass"`
}

// DefaultPermissionCheckConfig returns the permission defaults.
func DefaultPermissionCheckConfig() PermissionCheckConfig {
	return PermissionCheckConfig{
		Enabled:          true,
		CachePermissions: true,
		CacheTTL:         5 * time.Minute,
		AdminBypass:      true,
	}
}

// PermissionCheckRequest is the input of TestPermissions.
type PermissionCheckRequest struct {
	Resource  string    `json:"resource" binding:"required"`
	Operation Operation `json:"operation" binding:"required"`
	Fields    []string  `json:"fields,omitempty"`
	UserID    string    `json:"userId,omitempty"`
}

// PermissionCheckResult is the evaluated outcome of a permission test.
type PermissionCheckResult struct {
	HasPermission     bool            `json:"hasPermission"`
	PermissionLevel   PermissionLevel `json:"permissionLevel"`
	RestrictedFields  []string        `json:"restrictedFields"`
	AllowedOperations []Operation     `json:"allowedOperations"`
	LastChecked       time.Time       `json:"lastChecked"`
	CacheHit          bool            `json:"cacheHit"`
}

// FieldPermissionResult is the outcome for a single field.
type FieldPermissionResult struct {
	Field    string `json:"field"`
	Allowed  bool   `json:"allowed"`
	CanRead  bool   `json:"canRead"`
	CanWrite bool   `json:"canWrite"`
	Reason   string `json:"reason,omitempty"`
}
