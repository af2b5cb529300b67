package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	"github.com/dev-mohitbeniwal/semble/model"
)

type staticProvider struct {
	creds *model.Credentials
	err   error
	name  string
}

func (p *staticProvider) GetCredentials(ctx context.Context, name string) (*model.Credentials, error) {
	p.name = name
	return p.creds, p.err
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1", "exp": exp.Unix()})
	s, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func boolPtr(b bool) *bool { return &b }

func newCredentialService() (*CredentialService, *testclock.Clock) {
	clk := testclock.NewClock(testEpoch)
	return NewCredentialService(nil, clk), clk
}

func TestValidateCredentials_Valid(t *testing.T) {
	svc, _ := newCredentialService()

	result := svc.ValidateCredentials(&model.Credentials{
		Environment:         model.EnvironmentProduction,
		APIToken:            signedToken(t, testEpoch.Add(time.Hour)),
		BaseURL:             "https://open.semble.io/graphql",
		ProductionConfirmed: true,
	})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateCredentials_TokenShapeIsOnlyAWarning(t *testing.T) {
	svc, _ := newCredentialService()

	result := svc.ValidateCredentials(&model.Credentials{
		Environment: model.EnvironmentStaging,
		APIToken:    "plain-api-token",
	})
	assert.True(t, result.Valid)
	assert.Equal(t, []string{"API token does not look like a JWT"}, result.Warnings)
}

func TestValidateCredentials_ExpiredToken(t *testing.T) {
	svc, _ := newCredentialService()

	result := svc.ValidateCredentials(&model.Credentials{
		Environment: model.EnvironmentStaging,
		APIToken:    signedToken(t, testEpoch.Add(-time.Hour)),
	})
	assert.True(t, result.Valid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "expired")
}

func TestValidateCredentials_Errors(t *testing.T) {
	tests := []struct {
		name  string
		creds *model.Credentials
		want  string
	}{
		{"nil", nil, "Credentials are required"},
		{"missing token", &model.Credentials{Environment: model.EnvironmentStaging}, "API token is required"},
		{"http url", &model.Credentials{Environment: model.EnvironmentStaging, APIToken: "x", BaseURL: "http://open.semble.io/graphql"}, "Base URL must use HTTPS"},
		{"no graphql path", &model.Credentials{Environment: model.EnvironmentStaging, APIToken: "x", BaseURL: "https://open.semble.io/api"}, "Base URL must point to the GraphQL endpoint"},
		{"not a url", &model.Credentials{Environment: model.EnvironmentStaging, APIToken: "x", BaseURL: "graphql"}, "Base URL is not a valid URL"},
		{"unconfirmed production", &model.Credentials{Environment: model.EnvironmentProduction, APIToken: "x"}, "Production environment requires explicit confirmation (productionConfirmed)"},
		{"unknown environment", &model.Credentials{Environment: "qa", APIToken: "x"}, `Unknown environment "qa" (expected production, staging or development)`},
	}

	svc, _ := newCredentialService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := svc.ValidateCredentials(tt.creds)
			assert.False(t, result.Valid)
			assert.Contains(t, result.Errors, tt.want)
		})
	}
}

func TestValidateCredentials_SafetyModeOffWarnsOutsideProduction(t *testing.T) {
	svc, _ := newCredentialService()

	result := svc.ValidateCredentials(&model.Credentials{
		Environment: model.EnvironmentDevelopment,
		APIToken:    "x",
		SafetyMode:  boolPtr(false),
	})
	assert.True(t, result.Valid)
	assert.Contains(t, result.Warnings, "Safety mode is disabled for the development environment")
}

func TestValidateCredentials_SafetyModeFollowsEnvironmentDefault(t *testing.T) {
	svc, _ := newCredentialService()

	result := svc.ValidateCredentials(&model.Credentials{
		Environment: model.EnvironmentDevelopment,
		APIToken:    "x",
	})
	assert.True(t, result.Valid)
	assert.Contains(t, result.Warnings, "Safety mode is disabled for the development environment")

	result = svc.ValidateCredentials(&model.Credentials{
		Environment: model.EnvironmentStaging,
		APIToken:    "x",
	})
	assert.NotContains(t, result.Warnings, "Safety mode is disabled for the staging environment")
}

func TestGetCredentials_AppliesDefaults(t *testing.T) {
	svc, _ := newCredentialService()
	provider := &staticProvider{creds: &model.Credentials{
		Environment: model.EnvironmentDevelopment,
		APIToken:    " dev-token ",
	}}

	creds, err := svc.GetCredentials(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, CredentialName, provider.name)
	assert.Equal(t, "dev-token", creds.Token)
	assert.Equal(t, "https://dev.semble.io/graphql", creds.BaseURL)
	assert.Equal(t, 60*time.Second, creds.Timeout)
	assert.Equal(t, 5, creds.MaxRetries)
	assert.False(t, creds.SafetyMode)
}

func TestGetCredentials_Failures(t *testing.T) {
	svc, _ := newCredentialService()
	ctx := context.Background()

	_, err := svc.GetCredentials(ctx, nil)
	assert.Equal(t, semble_errors.CategoryConfig, semble_errors.CategoryOf(err))

	_, err = svc.GetCredentials(ctx, &staticProvider{err: errors.New("vault sealed")})
	assert.Equal(t, semble_errors.CodeMissingCredentials, semble_errors.CodeOf(err))

	_, err = svc.GetCredentials(ctx, &staticProvider{})
	assert.Equal(t, semble_errors.CodeMissingCredentials, semble_errors.CodeOf(err))
	assert.ErrorIs(t, err, semble_errors.ErrNoCredentials)

	_, err = svc.GetCredentials(ctx, &staticProvider{creds: &model.Credentials{Environment: model.EnvironmentProduction, APIToken: "x"}})
	assert.Equal(t, semble_errors.CodeInvalidCredentials, semble_errors.CodeOf(err))
	assert.Contains(t, err.Error(), "productionConfirmed")
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("SEMBLE_API_TOKEN", "env-token")
	t.Setenv("SEMBLE_ENVIRONMENT", "staging")
	t.Setenv("SEMBLE_SAFETY_MODE", "false")

	creds, err := CredentialsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-token", creds.APIToken)
	assert.Equal(t, model.EnvironmentStaging, creds.Environment)
	require.NotNil(t, creds.SafetyMode)
	assert.False(t, *creds.SafetyMode)
}

func TestTestConnection(t *testing.T) {
	svc, _ := newCredentialService()

	result := svc.TestConnection(context.Background(), &model.ExtendedCredentials{Token: "t", Environment: model.EnvironmentStaging})
	assert.True(t, result.Success)
	assert.Equal(t, model.EnvironmentStaging, result.Environment)

	result = svc.TestConnection(context.Background(), nil)
	assert.False(t, result.Success)
}
