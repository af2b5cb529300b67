// controller/controllers.go
package controller

import "github.com/dev-mohitbeniwal/semble/service"

type Controllers struct {
	Query       *QueryController
	Schema      *SchemaController
	Permission  *PermissionController
	Validation  *ValidationController
	Credentials *CredentialController
	Health      *HealthController
}

func InitializeControllers(services *service.Services) *Controllers {
	return &Controllers{
		Query:       NewQueryController(services.Query),
		Schema:      NewSchemaController(services.Discovery),
		Permission:  NewPermissionController(services.Permissions, services, services.Audit),
		Validation:  NewValidationController(services.Validation),
		Credentials: NewCredentialController(services.Credentials, services.Query),
		Health:      NewHealthController(services.Query),
	}
}
