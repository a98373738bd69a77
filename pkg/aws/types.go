package aws

import (
	"context"
	"errors"
	"fmt"
)

// Identity captures the principal that authenticated with STS.
type Identity struct {
	Arn string
}

// Credentials are temporary or long-lived AWS credentials.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// SignerKind selects how the subject token proving the AWS identity is produced.
type SignerKind string

const (
	// SignerKindAWS4Request signs a GetCallerIdentity request with SigV4.
	SignerKindAWS4Request SignerKind = "aws4_request"
	// SignerKindJWT asks AWS STS to mint a web identity token.
	SignerKindJWT SignerKind = "jwt"
)

// Subject token types understood by the Google STS token exchange.
const (
	SubjectTokenTypeAWS4Request = "urn:ietf:params:aws:token-type:aws4_request"
	SubjectTokenTypeJWT         = "urn:ietf:params:oauth:token-type:jwt"
)

var (
	// ErrNoSourceCredentials is returned when no AWS credentials can be resolved.
	ErrNoSourceCredentials = errors.New("no AWS source credentials available")
	// ErrUnknownSignerKind is returned for an unsupported subject token source.
	ErrUnknownSignerKind = errors.New("unknown subject token source")
)

// ParseSignerKind validates a subject token source name.
func ParseSignerKind(s string) (SignerKind, error) {
	switch kind := SignerKind(s); kind {
	case SignerKindAWS4Request, SignerKindJWT:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q (expected %q or %q)", ErrUnknownSignerKind, s, SignerKindAWS4Request, SignerKindJWT)
	}
}

// UnmarshalText lets configuration decoders parse a SignerKind.
func (k *SignerKind) UnmarshalText(text []byte) error {
	kind, err := ParseSignerKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// SubjectTokenType returns the token type URN matching the artifact this kind produces.
func (k SignerKind) SubjectTokenType() string {
	switch k {
	case SignerKindJWT:
		return SubjectTokenTypeJWT
	default:
		return SubjectTokenTypeAWS4Request
	}
}

// Service handles credential and identity operations against AWS APIs.
type Service interface {
	GetCallerIdentity(ctx context.Context) (Identity, error)
	RetrieveCredentials(ctx context.Context) (Credentials, error)
	GetWebIdentityToken(ctx context.Context, audience string, durationSeconds int32) (string, error)
}

// Signer produces a subject token proving control of an AWS identity.
type Signer interface {
	Kind() SignerKind
	SubjectToken(ctx context.Context, audience string) (string, error)
}
