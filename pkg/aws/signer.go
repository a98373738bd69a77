package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

const (
	callerIdentityURLFormat = "https://sts.%s.amazonaws.com?Action=GetCallerIdentity&Version=2011-06-15"
	stsSigningName          = "sts"

	// SHA-256 of an empty request body.
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	// TargetResourceHeader binds a signed request to the Google audience it is presented to.
	TargetResourceHeader = "x-goog-cloud-target-resource"

	defaultWebIdentityDuration int32 = 300
)

type httpSigner interface {
	SignHTTP(ctx context.Context, credentials awsv2.Credentials, r *http.Request, payloadHash string, service string, region string, signingTime time.Time, optFns ...func(*v4.SignerOptions)) error
}

// SignerOptions configures the signer variants.
type SignerOptions struct {
	// Region is used to build and sign the regional GetCallerIdentity request.
	Region string
	// Audience overrides the JWT audience. Empty derives it from the exchange audience.
	Audience string
}

// NewSigner returns the Signer for the given kind.
func NewSigner(kind SignerKind, service Service, opts SignerOptions) (Signer, error) {
	switch kind {
	case SignerKindAWS4Request:
		if opts.Region == "" {
			return nil, fmt.Errorf("region is required for %s subject tokens", kind)
		}
		return NewRequestSigner(service, opts.Region), nil
	case SignerKindJWT:
		return NewWebIdentitySigner(service, opts.Audience), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignerKind, kind)
	}
}

type signedHeader struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type signedRequest struct {
	URL     string         `json:"url"`
	Method  string         `json:"method"`
	Headers []signedHeader `json:"headers"`
}

// RequestSigner produces aws4_request subject tokens: a SigV4-signed
// GetCallerIdentity request serialized for the Google STS verifier.
type RequestSigner struct {
	service Service
	signer  httpSigner
	region  string
	now     func() time.Time
}

// NewRequestSigner creates a RequestSigner for the given region.
func NewRequestSigner(service Service, region string) *RequestSigner {
	return newRequestSigner(service, v4.NewSigner(), region, time.Now)
}

func newRequestSigner(service Service, signer httpSigner, region string, now func() time.Time) *RequestSigner {
	return &RequestSigner{
		service: service,
		signer:  signer,
		region:  region,
		now:     now,
	}
}

func (s *RequestSigner) Kind() SignerKind {
	return SignerKindAWS4Request
}

// SubjectToken signs a GetCallerIdentity request bound to audience and returns it
// as URL-encoded JSON. The request is never sent; Google STS replays it.
func (s *RequestSigner) SubjectToken(ctx context.Context, audience string) (string, error) {
	creds, err := s.service.RetrieveCredentials(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf(callerIdentityURLFormat, s.region), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build GetCallerIdentity request: %w", err)
	}
	req.Header.Set(TargetResourceHeader, audience)

	err = s.signer.SignHTTP(ctx, awsv2.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, req, emptyPayloadHash, stsSigningName, s.region, s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to sign GetCallerIdentity request: %w", err)
	}

	signed := signedRequest{
		URL:     req.URL.String(),
		Method:  req.Method,
		Headers: []signedHeader{{Key: "host", Value: req.URL.Host}},
	}
	for key, values := range req.Header {
		for _, value := range values {
			signed.Headers = append(signed.Headers, signedHeader{Key: strings.ToLower(key), Value: value})
		}
	}
	sort.Slice(signed.Headers, func(i, j int) bool {
		if signed.Headers[i].Key == signed.Headers[j].Key {
			return signed.Headers[i].Value < signed.Headers[j].Value
		}
		return signed.Headers[i].Key < signed.Headers[j].Key
	})

	payload, err := json.Marshal(signed)
	if err != nil {
		return "", fmt.Errorf("failed to marshal signed request: %w", err)
	}

	return url.QueryEscape(string(payload)), nil
}

// WebIdentitySigner produces jwt subject tokens minted by AWS STS.
type WebIdentitySigner struct {
	service  Service
	audience string
	duration int32
}

// NewWebIdentitySigner creates a WebIdentitySigner. An empty audience is
// derived from the exchange audience on each call.
func NewWebIdentitySigner(service Service, audience string) *WebIdentitySigner {
	return &WebIdentitySigner{
		service:  service,
		audience: audience,
		duration: defaultWebIdentityDuration,
	}
}

func (s *WebIdentitySigner) Kind() SignerKind {
	return SignerKindJWT
}

func (s *WebIdentitySigner) SubjectToken(ctx context.Context, audience string) (string, error) {
	target := s.audience
	if target == "" {
		target = WebIdentityAudience(audience)
	}
	return s.service.GetWebIdentityToken(ctx, target, s.duration)
}

// WebIdentityAudience converts a //iam.googleapis.com/... exchange audience into
// the https:// form Google accepts as a JWT aud claim.
func WebIdentityAudience(exchangeAudience string) string {
	if strings.HasPrefix(exchangeAudience, "//") {
		return "https:" + exchangeAudience
	}
	return exchangeAudience
}
