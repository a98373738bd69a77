package mocks

import (
	"context"
	"fmt"

	awslib "github.com/SaadAlam/aws-outbound-federation-demo/pkg/aws"
)

type Service struct {
	GetCallerIdentityFunc   func(ctx context.Context) (awslib.Identity, error)
	RetrieveCredentialsFunc func(ctx context.Context) (awslib.Credentials, error)
	GetWebIdentityTokenFunc func(ctx context.Context, audience string, durationSeconds int32) (string, error)

	GetCallerIdentityCalls   int
	RetrieveCredentialsCalls int
	GetWebIdentityTokenCalls int
	LastAudience             string
	LastDurationSeconds      int32
}

func (m *Service) GetCallerIdentity(ctx context.Context) (awslib.Identity, error) {
	m.GetCallerIdentityCalls++
	if m.GetCallerIdentityFunc == nil {
		return awslib.Identity{}, fmt.Errorf("GetCallerIdentityFunc is not set")
	}
	return m.GetCallerIdentityFunc(ctx)
}

func (m *Service) RetrieveCredentials(ctx context.Context) (awslib.Credentials, error) {
	m.RetrieveCredentialsCalls++
	if m.RetrieveCredentialsFunc == nil {
		return awslib.Credentials{}, fmt.Errorf("RetrieveCredentialsFunc is not set")
	}
	return m.RetrieveCredentialsFunc(ctx)
}

func (m *Service) GetWebIdentityToken(ctx context.Context, audience string, durationSeconds int32) (string, error) {
	m.GetWebIdentityTokenCalls++
	m.LastAudience = audience
	m.LastDurationSeconds = durationSeconds
	if m.GetWebIdentityTokenFunc == nil {
		return "", fmt.Errorf("GetWebIdentityTokenFunc is not set")
	}
	return m.GetWebIdentityTokenFunc(ctx, audience, durationSeconds)
}

type Signer struct {
	KindValue        awslib.SignerKind
	SubjectTokenFunc func(ctx context.Context, audience string) (string, error)

	SubjectTokenCalls int
	LastAudience      string
}

func (m *Signer) Kind() awslib.SignerKind {
	return m.KindValue
}

func (m *Signer) SubjectToken(ctx context.Context, audience string) (string, error) {
	m.SubjectTokenCalls++
	m.LastAudience = audience
	if m.SubjectTokenFunc == nil {
		return "", fmt.Errorf("SubjectTokenFunc is not set")
	}
	return m.SubjectTokenFunc(ctx, audience)
}
