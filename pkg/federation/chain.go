// Package federation drives the AWS to Google Cloud token chain: sign a subject
// token, exchange it at Google STS, impersonate a service account and write an
// object to Cloud Storage.
//
// A Chain holds no per-run state and may be used by concurrent invocations.
// Every stage error is fatal to the run; nothing is retried.
package federation

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	awslib "github.com/SaadAlam/aws-outbound-federation-demo/pkg/aws"
	"github.com/SaadAlam/aws-outbound-federation-demo/pkg/config"
	"github.com/SaadAlam/aws-outbound-federation-demo/pkg/gcp"
)

// Payload is the content written by every run.
var Payload = []byte("Hello from AWS outbound federation demo")

// ErrScopeEscalation is returned when a stage would request a scope broader
// than the token authorizing it.
var ErrScopeEscalation = errors.New("requested scopes exceed the authorizing token")

// State is a position in the chain.
type State int

const (
	StateStart State = iota
	StateSignedSubjectToken
	StateFederatedToken
	StateImpersonatedToken
	StateUploaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateSignedSubjectToken:
		return "SignedSubjectToken"
	case StateFederatedToken:
		return "FederatedToken"
	case StateImpersonatedToken:
		return "ImpersonatedToken"
	case StateUploaded:
		return "Uploaded"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stage names the operation that moves the chain out of a state.
type Stage string

const (
	StageSign        Stage = "sign subject token"
	StageExchange    Stage = "exchange token"
	StageImpersonate Stage = "impersonate service account"
	StageUpload      Stage = "upload object"
	StageRead        Stage = "read object"
)

// StageError reports which stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("federation chain failed to %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Target is what the chain federates into and writes.
type Target struct {
	PoolProvider        string
	ServiceAccountEmail string
	Bucket              string
	ObjectName          string
}

// Result is the outcome of a run. It never carries a token.
type Result struct {
	State      State
	Bucket     string
	Object     string
	Generation int64
}

// Stages are the collaborators the chain drives, in order.
type Stages struct {
	Signer    awslib.Signer
	Exchanger gcp.TokenExchanger
	Escalator gcp.Impersonator
	Writer    gcp.ObjectWriter
	Reader    gcp.ObjectReader
}

// Chain runs the four-stage federation.
type Chain struct {
	stages Stages
	target Target
	logger *log.Logger

	federatedScopes     []string
	impersonationScopes []string
}

// NewChain creates a chain over the given stages.
func NewChain(target Target, stages Stages, logger *log.Logger) *Chain {
	if logger == nil {
		logger = log.Default()
	}
	return &Chain{
		stages:              stages,
		target:              target,
		logger:              logger,
		federatedScopes:     []string{gcp.ScopeCloudPlatform},
		impersonationScopes: []string{gcp.ScopeStorageReadWrite},
	}
}

// NewFromConfig wires the production AWS and Google clients from cfg.
func NewFromConfig(cfg config.Config, logger *log.Logger) (*Chain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	service := awslib.NewService(awslib.ServiceOptions{
		Profile:     cfg.Profile,
		Region:      cfg.Region,
		STSEndpoint: cfg.AWSSTSEndpoint,
	})
	signer, err := awslib.NewSigner(cfg.SubjectTokenSource, service, awslib.SignerOptions{
		Region:   cfg.Region,
		Audience: cfg.SubjectTokenAudience,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subject token signer: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	storage := gcp.NewStorageClient(httpClient, cfg.StorageEndpoint)

	return NewChain(Target{
		PoolProvider:        cfg.PoolProvider,
		ServiceAccountEmail: cfg.ServiceAccountEmail,
		Bucket:              cfg.Bucket,
		ObjectName:          cfg.ObjectName,
	}, Stages{
		Signer:    signer,
		Exchanger: gcp.NewSTSClient(httpClient, cfg.STSEndpoint),
		Escalator: gcp.NewIAMCredentialsClient(httpClient, cfg.IAMCredentialsEndpoint),
		Writer:    storage,
		Reader:    storage,
	}, logger), nil
}

// Run executes all four stages and writes Payload to the target object.
// Re-running overwrites the same object.
func (c *Chain) Run(ctx context.Context) (Result, error) {
	token, err := c.Authorize(ctx)
	if err != nil {
		return Result{State: StateFailed}, err
	}

	attrs, err := c.stages.Writer.WriteObject(ctx, token, gcp.Object{
		Bucket:      c.target.Bucket,
		Name:        c.target.ObjectName,
		ContentType: "text/plain",
		Data:        Payload,
	})
	if err != nil {
		return Result{State: StateFailed}, c.fail(StateImpersonatedToken, StageUpload, err)
	}
	c.advance(StateUploaded, "bucket", attrs.Bucket, "object", attrs.Name, "generation", attrs.Generation)

	return Result{
		State:      StateUploaded,
		Bucket:     attrs.Bucket,
		Object:     attrs.Name,
		Generation: attrs.Generation,
	}, nil
}

// Authorize runs the first three stages and returns the impersonated token.
func (c *Chain) Authorize(ctx context.Context) (*oauth2.Token, error) {
	signer := c.stages.Signer
	audience := gcp.Audience(c.target.PoolProvider)

	c.logger.Debug("Starting federation chain", "state", StateStart, "signer", signer.Kind(), "audience", audience)

	subjectToken, err := signer.SubjectToken(ctx, audience)
	if err != nil {
		return nil, c.fail(StateStart, StageSign, err)
	}
	c.advance(StateSignedSubjectToken, "signer", signer.Kind())

	federated, err := c.stages.Exchanger.ExchangeToken(ctx, gcp.ExchangeRequest{
		Audience:         audience,
		SubjectToken:     subjectToken,
		SubjectTokenType: signer.Kind().SubjectTokenType(),
		Scopes:           c.federatedScopes,
	})
	if err != nil {
		return nil, c.fail(StateSignedSubjectToken, StageExchange, err)
	}
	c.advance(StateFederatedToken, "expiry", federated.Expiry)

	if !gcp.ScopesWithin(c.federatedScopes, c.impersonationScopes) {
		err := fmt.Errorf("%w: %v not within %v", ErrScopeEscalation, c.impersonationScopes, c.federatedScopes)
		return nil, c.fail(StateFederatedToken, StageImpersonate, err)
	}

	impersonated, err := c.stages.Escalator.GenerateAccessToken(ctx, federated, c.target.ServiceAccountEmail, c.impersonationScopes)
	if err != nil {
		return nil, c.fail(StateFederatedToken, StageImpersonate, err)
	}
	c.advance(StateImpersonatedToken, "serviceAccount", c.target.ServiceAccountEmail, "expiry", impersonated.Expiry)

	return impersonated, nil
}

// Verify authorizes and reads the target object back.
func (c *Chain) Verify(ctx context.Context) ([]byte, error) {
	if c.stages.Reader == nil {
		return nil, &StageError{Stage: StageRead, Err: errors.New("no object reader configured")}
	}

	token, err := c.Authorize(ctx)
	if err != nil {
		return nil, err
	}

	data, err := c.stages.Reader.ReadObject(ctx, token, c.target.Bucket, c.target.ObjectName)
	if err != nil {
		return nil, c.fail(StateImpersonatedToken, StageRead, err)
	}
	return data, nil
}

func (c *Chain) advance(to State, keyvals ...interface{}) {
	c.logger.Debug("Federation chain advanced", append([]interface{}{"state", to}, keyvals...)...)
}

func (c *Chain) fail(from State, stage Stage, err error) error {
	c.logger.Error("Federation chain failed", "from", from, "state", StateFailed, "stage", stage, "err", err)
	return &StageError{Stage: stage, Err: err}
}
