package engine

import (
	"fmt"

	"go.uber.org/zap"

	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/model"
	pdp_model "github.com/dev-mohitbeniwal/semble/pdp/model"
)

// requiredLevels lists the global levels that satisfy each operation.
var requiredLevels = map[model.Operation][]model.PermissionLevel{
	model.OperationRead:   {model.PermissionRead, model.PermissionWrite, model.PermissionAdmin},
	model.OperationWrite:  {model.PermissionWrite, model.PermissionAdmin},
	model.OperationCreate: {model.PermissionWrite, model.PermissionAdmin},
	model.OperationUpdate: {model.PermissionWrite, model.PermissionAdmin},
	model.OperationDelete: {model.PermissionAdmin},
}

// AllOperations in evaluation order.
var AllOperations = []model.Operation{
	model.OperationRead,
	model.OperationWrite,
	model.OperationCreate,
	model.OperationUpdate,
	model.OperationDelete,
}

// PermissionEvaluator turns ResourcePermissions into access decisions.
type PermissionEvaluator struct{}

func NewPermissionEvaluator() *PermissionEvaluator {
	return &PermissionEvaluator{}
}

// HasGlobalPermission reports whether the resource-wide level of perms
// satisfies op. Unknown operations are denied.
func (pe *PermissionEvaluator) HasGlobalPermission(perms *model.ResourcePermissions, op model.Operation) bool {
	if perms == nil {
		return false
	}
	levels, ok := requiredLevels[op]
	if !ok {
		logger.Warn("Unknown operation", zap.String("operation", string(op)))
		return false
	}
	for _, l := range levels {
		if perms.GlobalPermission == l {
			return true
		}
	}
	return false
}

// AllowedOperations lists every operation the global level permits.
func (pe *PermissionEvaluator) AllowedOperations(perms *model.ResourcePermissions) []model.Operation {
	ops := []model.Operation{}
	for _, op := range AllOperations {
		if pe.HasGlobalPermission(perms, op) {
			ops = append(ops, op)
		}
	}
	return ops
}

// EvaluateField checks one field. A field without its own entry inherits
// the resource's global level.
func (pe *PermissionEvaluator) EvaluateField(perms *model.ResourcePermissions, field string, op model.Operation) model.FieldPermissionResult {
	result := model.FieldPermissionResult{Field: field}

	fp, ok := perms.FieldPermissions[field]
	if !ok {
		result.CanRead = pe.HasGlobalPermission(perms, model.OperationRead)
		result.CanWrite = pe.HasGlobalPermission(perms, model.OperationWrite)
		result.Reason = fmt.Sprintf("inherited from global permission %q", perms.GlobalPermission)
	} else {
		result.CanRead = fp.Read
		result.CanWrite = fp.Write
	}

	if op == model.OperationRead {
		result.Allowed = result.CanRead
	} else {
		result.Allowed = result.CanWrite
	}
	if !result.Allowed && result.Reason == "" {
		result.Reason = fmt.Sprintf("field %s is not permitted for %s", field, op)
	}
	return result
}

// Evaluate combines the operation-level check with per-field checks. Field
// checks run only when the request names fields; denied fields are listed
// in RestrictedFields but do not flip the effect.
func (pe *PermissionEvaluator) Evaluate(request *pdp_model.AccessRequest, perms *model.ResourcePermissions) *pdp_model.AccessDecision {
	decision := &pdp_model.AccessDecision{
		Effect:            pdp_model.EffectDeny,
		PermissionLevel:   model.PermissionNone,
		AllowedOperations: []model.Operation{},
		RestrictedFields:  []string{},
	}
	if perms == nil {
		decision.Reason = "no permissions available"
		return decision
	}

	decision.PermissionLevel = perms.GlobalPermission
	decision.AllowedOperations = pe.AllowedOperations(perms)

	if pe.HasGlobalPermission(perms, request.Operation) {
		decision.Effect = pdp_model.EffectAllow
		decision.Reason = fmt.Sprintf("global permission %q allows %s", perms.GlobalPermission, request.Operation)
	} else {
		decision.Reason = fmt.Sprintf("global permission %q does not allow %s", perms.GlobalPermission, request.Operation)
	}

	for _, field := range request.Fields {
		fr := pe.EvaluateField(perms, field, request.Operation)
		decision.FieldResults = append(decision.FieldResults, fr)
		if !fr.Allowed {
			decision.RestrictedFields = append(decision.RestrictedFields, field)
		}
	}
	return decision
}
