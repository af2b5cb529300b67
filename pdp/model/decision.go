package model

import "github.com/dev-mohitbeniwal/semble/model"

const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

type AccessDecision struct {
	Effect            string                        `json:"effect"`
	Reason            string                        `json:"reason,omitempty"`
	PermissionLevel   model.PermissionLevel         `json:"permissionLevel"`
	AllowedOperations []model.Operation             `json:"allowedOperations"`
	RestrictedFields  []string                      `json:"restrictedFields"`
	FieldResults      []model.FieldPermissionResult `json:"fieldResults,omitempty"`
}

// Allowed reports whether the decision grants access.
func (d *AccessDecision) Allowed() bool {
	return d != nil && d.Effect == EffectAllow
}
