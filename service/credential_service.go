// service/credential_service.go
package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock"
	"go.uber.org/zap"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/model"
)

// CredentialName is the name under which the host stores Semble credentials.
const CredentialName = "sembleApi"

// CredentialProvider is implemented by the host that owns the stored
// credentials.
type CredentialProvider interface {
	GetCredentials(ctx context.Context, name string) (*model.Credentials, error)
}

// EnvCredentialProvider reads credentials from SEMBLE_* environment
// variables.
type EnvCredentialProvider struct{}

func (EnvCredentialProvider) GetCredentials(ctx context.Context, name string) (*model.Credentials, error) {
	return CredentialsFromEnv()
}

// CredentialsFromEnv parses SEMBLE_* environment variables.
func CredentialsFromEnv() (*model.Credentials, error) {
	creds, err := env.ParseAs[model.Credentials]()
	if err != nil {
		return nil, semble_errors.NewConfigError(semble_errors.CodeInvalidConfig,
			fmt.Sprintf("invalid Semble credentials in environment: %v", err))
	}
	return &creds, nil
}

var environmentDefaults = map[model.Environment]model.EnvironmentDefaults{
	model.EnvironmentProduction: {
		BaseURL:    "https://open.semble.io/graphql",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		SafetyMode: true,
	},
	model.EnvironmentStaging: {
		BaseURL:    "https://staging.semble.io/graphql",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		SafetyMode: true,
	},
	model.EnvironmentDevelopment: {
		BaseURL:    "https://dev.semble.io/graphql",
		Timeout:    60 * time.Second,
		MaxRetries: 5,
		SafetyMode: false,
	},
}

type ICredentialService interface {
	ValidateCredentials(creds *model.Credentials) model.CredentialValidationResult
	GetCredentials(ctx context.Context, provider CredentialProvider) (*model.ExtendedCredentials, error)
	EnvironmentDefaults(env model.Environment) model.EnvironmentDefaults
	TestConnection(ctx context.Context, creds *model.ExtendedCredentials) model.ConnectionTestResult
}

// CredentialService validates host-supplied credentials and maps them onto
// ExtendedCredentials.
type CredentialService struct {
	validate *validator.Validate
	clock    clock.Clock
}

var _ ICredentialService = &CredentialService{}

func NewCredentialService(validate *validator.Validate, clk clock.Clock) *CredentialService {
	if validate == nil {
		validate = validator.New()
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &CredentialService{validate: validate, clock: clk}
}

// EnvironmentDefaults returns the settings for env, falling back to
// production for unknown names.
func (s *CredentialService) EnvironmentDefaults(env model.Environment) model.EnvironmentDefaults {
	if d, ok := environmentDefaults[env]; ok {
		return d
	}
	return environmentDefaults[model.EnvironmentProduction]
}

// ValidateCredentials checks creds. A token that does not look like a JWT
// only produces a warning; an invalid URL or an unconfirmed production
// environment is an error.
func (s *CredentialService) ValidateCredentials(creds *model.Credentials) model.CredentialValidationResult {
	result := model.CredentialValidationResult{Errors: []string{}, Warnings: []string{}}
	if creds == nil {
		result.Errors = append(result.Errors, "Credentials are required")
		return result
	}

	token := strings.TrimSpace(creds.APIToken)
	if token == "" {
		result.Errors = append(result.Errors, "API token is required")
	} else {
		result.Warnings = append(result.Warnings, s.tokenWarnings(token)...)
	}

	env := creds.Environment
	if env == "" {
		env = model.EnvironmentProduction
	}
	if _, ok := environmentDefaults[env]; !ok {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Unknown environment %q (expected production, staging or development)", env))
	}

	if creds.BaseURL != "" {
		result.Errors = append(result.Errors, s.urlErrors(creds.BaseURL)...)
	}

	if env == model.EnvironmentProduction {
		if !creds.ProductionConfirmed {
			result.Errors = append(result.Errors,
				"Production environment requires explicit confirmation (productionConfirmed)")
		}
	} else if !s.effectiveSafetyMode(env, creds.SafetyMode) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Safety mode is disabled for the %s environment", env))
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// effectiveSafetyMode is the explicit setting, or the environment default
// when none was given.
func (s *CredentialService) effectiveSafetyMode(env model.Environment, explicit *bool) bool {
	if explicit != nil {
		return *explicit
	}
	return s.EnvironmentDefaults(env).SafetyMode
}

func (s *CredentialService) tokenWarnings(token string) []string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return []string{"API token does not look like a JWT"}
	}

	exp, err := claims.GetExpirationTime()
	if err == nil && exp != nil && exp.Before(s.clock.Now()) {
		return []string{fmt.Sprintf("API token expired at %s", exp.UTC().Format(time.RFC3339))}
	}
	return nil
}

func (s *CredentialService) urlErrors(raw string) []string {
	if err := s.validate.Var(raw, "url"); err != nil {
		return []string{"Base URL is not a valid URL"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return []string{"Base URL is not a valid URL"}
	}

	var errs []string
	if u.Scheme != "https" {
		errs = append(errs, "Base URL must use HTTPS")
	}
	if !strings.Contains(strings.ToLower(u.Path), "graphql") {
		errs = append(errs, "Base URL must point to the GraphQL endpoint")
	}
	return errs
}

// GetCredentials loads credentials from provider, validates them and
// applies environment defaults.
func (s *CredentialService) GetCredentials(ctx context.Context, provider CredentialProvider) (*model.ExtendedCredentials, error) {
	if provider == nil {
		return nil, semble_errors.NewConfigError(semble_errors.CodeMissingDependency,
			"credential provider is required")
	}

	creds, err := provider.GetCredentials(ctx, CredentialName)
	if err != nil {
		logger.Error("Failed to load Semble credentials", zap.Error(err))
		return nil, semble_errors.NewAuthError(semble_errors.CodeMissingCredentials,
			fmt.Sprintf("failed to load credentials: %v", err))
	}
	if creds == nil {
		err := semble_errors.NewAuthError(semble_errors.CodeMissingCredentials,
			"no Semble credentials configured")
		err.Cause = semble_errors.ErrNoCredentials
		return nil, err
	}

	result := s.ValidateCredentials(creds)
	for _, w := range result.Warnings {
		logger.Warn("Semble credential warning", zap.String("warning", w))
	}
	if !result.Valid {
		return nil, semble_errors.NewAuthError(semble_errors.CodeInvalidCredentials,
			strings.Join(result.Errors, "; ")).
			WithContext("errors", result.Errors)
	}

	return s.extend(creds), nil
}

func (s *CredentialService) extend(creds *model.Credentials) *model.ExtendedCredentials {
	env := creds.Environment
	if env == "" {
		env = model.EnvironmentProduction
	}
	defaults := s.EnvironmentDefaults(env)

	ext := &model.ExtendedCredentials{
		Environment:         env,
		Token:               strings.TrimSpace(creds.APIToken),
		BaseURL:             defaults.BaseURL,
		SafetyMode:          defaults.SafetyMode,
		ProductionConfirmed: creds.ProductionConfirmed,
		Timeout:             defaults.Timeout,
		MaxRetries:          defaults.MaxRetries,
	}
	if creds.BaseURL != "" {
		ext.BaseURL = creds.BaseURL
	}
	if creds.SafetyMode != nil {
		ext.SafetyMode = *creds.SafetyMode
	}
	return ext
}

// TestConnection does not contact the API yet; it reports success for any
// credentials carrying a token or API key.
// TODO: issue a lightweight query through SembleQueryService once a
// side-effect free health query is agreed with Semble.
func (s *CredentialService) TestConnection(ctx context.Context, creds *model.ExtendedCredentials) model.ConnectionTestResult {
	start := s.clock.Now()
	if !creds.HasAuth() {
		return model.ConnectionTestResult{
			Success: false,
			Message: "No API token configured",
		}
	}
	return model.ConnectionTestResult{
		Success:      true,
		Message:      fmt.Sprintf("Credentials accepted for %s", creds.Environment),
		ResponseTime: s.clock.Now().Sub(start),
		Environment:  creds.Environment,
	}
}
