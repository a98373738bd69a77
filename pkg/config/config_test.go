package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awslib "github.com/SaadAlam/aws-outbound-federation-demo/pkg/aws"
)

func baseEnv() map[string]string {
	return map[string]string{
		"GCP_SA_EMAIL":      "svc@project.iam.gserviceaccount.com",
		"WIF_POOL_PROVIDER": "projects/123/locations/global/workloadIdentityPools/p/providers/pr",
		"GCS_BUCKET_NAME":   "my-bucket",
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(baseEnv())
	require.NoError(t, err)

	assert.Equal(t, "svc@project.iam.gserviceaccount.com", cfg.ServiceAccountEmail)
	assert.Equal(t, "my-bucket", cfg.Bucket)
	assert.Equal(t, DefaultObjectName, cfg.ObjectName)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, awslib.SignerKindAWS4Request, cfg.SubjectTokenSource)
	assert.Equal(t, "https://sts.googleapis.com/v1/token", cfg.STSEndpoint)
	assert.Equal(t, "https://iamcredentials.googleapis.com/", cfg.IAMCredentialsEndpoint)
	assert.Equal(t, "https://storage.googleapis.com", cfg.StorageEndpoint)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.AWSSTSEndpoint)
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	environ := baseEnv()
	environ["AWS_REGION"] = "eu-central-1"
	environ["AWS_PROFILE"] = "federation"
	environ["AWS_STS_ENDPOINT"] = "https://sts.eu-central-1.amazonaws.com"
	environ["SUBJECT_TOKEN_SOURCE"] = "jwt"
	environ["SUBJECT_TOKEN_AUDIENCE"] = "https://example.test/aud"
	environ["HTTP_TIMEOUT"] = "3s"
	environ["LOG_FORMAT"] = "json"

	cfg, err := Load(environ)
	require.NoError(t, err)

	assert.Equal(t, "eu-central-1", cfg.Region)
	assert.Equal(t, "federation", cfg.Profile)
	assert.Equal(t, "https://sts.eu-central-1.amazonaws.com", cfg.AWSSTSEndpoint)
	assert.Equal(t, awslib.SignerKindJWT, cfg.SubjectTokenSource)
	assert.Equal(t, "https://example.test/aud", cfg.SubjectTokenAudience)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		mutate        func(env map[string]string)
		wantErrSubstr string
	}{
		{
			name:          "missing service account",
			mutate:        func(env map[string]string) { delete(env, "GCP_SA_EMAIL") },
			wantErrSubstr: "GCP_SA_EMAIL",
		},
		{
			name:          "missing pool provider",
			mutate:        func(env map[string]string) { delete(env, "WIF_POOL_PROVIDER") },
			wantErrSubstr: "WIF_POOL_PROVIDER",
		},
		{
			name:          "empty bucket",
			mutate:        func(env map[string]string) { env["GCS_BUCKET_NAME"] = "" },
			wantErrSubstr: "GCS_BUCKET_NAME",
		},
		{
			name:          "unknown subject token source",
			mutate:        func(env map[string]string) { env["SUBJECT_TOKEN_SOURCE"] = "saml" },
			wantErrSubstr: "unknown subject token source",
		},
		{
			name:          "unknown log format",
			mutate:        func(env map[string]string) { env["LOG_FORMAT"] = "xml" },
			wantErrSubstr: "LOG_FORMAT must be text or json",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			environ := baseEnv()
			tc.mutate(environ)

			_, err := Load(environ)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tc.wantErrSubstr)
		})
	}
}
