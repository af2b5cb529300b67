// model/credentials.go
package model

import "time"

// Environment names a Semble deployment.
type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentStaging     Environment = "staging"
	EnvironmentDevelopment Environment = "development"
)

// Credentials is the raw credential object supplied by the host.
type Credentials struct {
	Environment         Environment `json:"environment" mapstructure:"environment" env:"SEMBLE_ENVIRONMENT" envDefault:"production"`
	APIToken            string      `json:"apiToken" mapstructure:"apiToken" env:"SEMBLE_API_TOKEN"`
	BaseURL             string      `json:"baseUrl" mapstructure:"baseURL" env:"SEMBLE_BASE_URL"`
	SafetyMode          *bool       `json:"safetyMode,omitempty" mapstructure:"safetyMode" env:"SEMBLE_SAFETY_MODE"`
	ProductionConfirmed bool        `json:"productionConfirmed,omitempty" mapstructure:"productionConfirmed" env:"SEMBLE_PRODUCTION_CONFIRMED"`
}

// ExtendedCredentials are validated credentials with environment defaults
// applied, ready for SembleQueryService.
type ExtendedCredentials struct {
	Environment         Environment   `json:"environment"`
	Token               string        `json:"-"`
	APIKey              string        `json:"-"`
	BaseURL             string        `json:"baseUrl"`
	SafetyMode          bool          `json:"safetyMode"`
	ProductionConfirmed bool          `json:"productionConfirmed"`
	Timeout             time.Duration `json:"timeout"`
	MaxRetries          int           `json:"maxRetries"`
}

// HasAuth reports whether a token or API key is present.
func (c *ExtendedCredentials) HasAuth() bool {
	return c != nil && (c.Token != "" || c.APIKey != "")
}

// EnvironmentDefaults are the per-environment settings.
type EnvironmentDefaults struct {
	BaseURL    string        `json:"baseUrl"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"maxRetries"`
	SafetyMode bool          `json:"safetyMode"`
}

// CredentialValidationResult lists problems as plain strings for display.
type CredentialValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ConnectionTestResult is returned by CredentialService.TestConnection.
type ConnectionTestResult struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	ResponseTime time.Duration `json:"responseTime"`
	Environment  Environment   `json:"environment"`
}
