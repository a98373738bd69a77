// Package gcp implements the Google Cloud side of the federation chain: the STS
// token exchange, service account impersonation and Cloud Storage access.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const (
	// DefaultSTSEndpoint is the Google STS token exchange endpoint.
	DefaultSTSEndpoint = "https://sts.googleapis.com/v1/token"
	// DefaultIAMCredentialsEndpoint is the base URL of the IAM Credentials API.
	DefaultIAMCredentialsEndpoint = "https://iamcredentials.googleapis.com/"
	// DefaultStorageEndpoint is the base URL of the Cloud Storage JSON API.
	DefaultStorageEndpoint = "https://storage.googleapis.com"

	iamAudiencePrefix = "//iam.googleapis.com/"
)

var (
	// ErrUpstreamRejected is wrapped by every non-2xx response from a Google endpoint.
	ErrUpstreamRejected = errors.New("upstream rejected request")
	// ErrObjectNotFound is returned when a read targets a missing object.
	ErrObjectNotFound = errors.New("object not found")
)

// HTTPDoer is the transport seam used by the raw HTTP clients.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// UpstreamError describes a non-2xx response from a Google endpoint.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstreamRejected
}

// ExchangeRequest is the input of an STS token exchange.
type ExchangeRequest struct {
	Audience         string
	SubjectToken     string
	SubjectTokenType string
	Scopes           []string
}

// Object is a payload to write to Cloud Storage.
type Object struct {
	Bucket      string
	Name        string
	ContentType string
	Data        []byte
}

// ObjectAttrs is the subset of the object resource reported after an upload.
type ObjectAttrs struct {
	Bucket     string
	Name       string
	Generation int64
	Size       int64
}

// TokenExchanger exchanges a subject token for a federated access token.
type TokenExchanger interface {
	ExchangeToken(ctx context.Context, req ExchangeRequest) (*oauth2.Token, error)
}

// Impersonator mints an access token for a service account.
type Impersonator interface {
	GenerateAccessToken(ctx context.Context, federated *oauth2.Token, serviceAccountEmail string, scopes []string) (*oauth2.Token, error)
}

// ObjectWriter uploads objects to Cloud Storage.
type ObjectWriter interface {
	WriteObject(ctx context.Context, token *oauth2.Token, obj Object) (ObjectAttrs, error)
}

// ObjectReader reads objects from Cloud Storage.
type ObjectReader interface {
	ReadObject(ctx context.Context, token *oauth2.Token, bucket, name string) ([]byte, error)
}

// Audience returns the STS audience for a workload identity pool provider path
// such as projects/123/locations/global/workloadIdentityPools/pool/providers/provider.
func Audience(poolProvider string) string {
	if strings.HasPrefix(poolProvider, iamAudiencePrefix) {
		return poolProvider
	}
	return iamAudiencePrefix + strings.TrimPrefix(poolProvider, "/")
}
