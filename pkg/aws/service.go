package aws

import (
	"context"
	"errors"
	"fmt"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// webIdentitySigningAlgorithm is the JWT signature algorithm requested from STS.
const webIdentitySigningAlgorithm = "RS256"

type configLoader interface {
	LoadDefaultConfig(ctx context.Context, optFns ...func(*config.LoadOptions) error) (awsv2.Config, error)
}

type defaultConfigLoader struct{}

func (defaultConfigLoader) LoadDefaultConfig(ctx context.Context, optFns ...func(*config.LoadOptions) error) (awsv2.Config, error) {
	return config.LoadDefaultConfig(ctx, optFns...)
}

type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
	GetWebIdentityToken(ctx context.Context, params *sts.GetWebIdentityTokenInput, optFns ...func(*sts.Options)) (*sts.GetWebIdentityTokenOutput, error)
}

type stsClientFactory interface {
	NewFromConfig(cfg awsv2.Config) stsAPI
}

type defaultSTSClientFactory struct {
	endpoint string
}

func (f defaultSTSClientFactory) NewFromConfig(cfg awsv2.Config) stsAPI {
	return sts.NewFromConfig(cfg, func(o *sts.Options) {
		if f.endpoint != "" {
			o.BaseEndpoint = awsv2.String(f.endpoint)
		}
	})
}

// ServiceOptions scopes the ambient AWS configuration used by SDKService.
type ServiceOptions struct {
	// Profile selects a shared config profile. Empty uses the default chain.
	Profile string
	// Region is the AWS region used for STS calls and request signing.
	Region string
	// STSEndpoint overrides the STS endpoint for SDK calls.
	STSEndpoint string
}

// SDKService is the concrete implementation backed by AWS SDK v2.
type SDKService struct {
	loader     configLoader
	stsFactory stsClientFactory
	opts       ServiceOptions
}

// NewService creates an AWS service implementation that uses AWS SDK v2.
func NewService(opts ServiceOptions) *SDKService {
	return newSDKService(defaultConfigLoader{}, defaultSTSClientFactory{endpoint: opts.STSEndpoint}, opts)
}

func newSDKService(loader configLoader, stsFactory stsClientFactory, opts ServiceOptions) *SDKService {
	return &SDKService{
		loader:     loader,
		stsFactory: stsFactory,
		opts:       opts,
	}
}

func (s *SDKService) loadConfig(ctx context.Context) (awsv2.Config, error) {
	var opts []func(*config.LoadOptions) error
	if s.opts.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(s.opts.Profile))
	}
	if s.opts.Region != "" {
		opts = append(opts, config.WithRegion(s.opts.Region))
	}

	cfg, err := s.loader.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return awsv2.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

func (s *SDKService) GetCallerIdentity(ctx context.Context) (Identity, error) {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return Identity{}, err
	}

	out, err := s.stsFactory.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, err
	}

	return Identity{Arn: awsv2.ToString(out.Arn)}, nil
}

func (s *SDKService) RetrieveCredentials(ctx context.Context) (Credentials, error) {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return Credentials{}, err
	}

	if cfg.Credentials == nil {
		return Credentials{}, ErrNoSourceCredentials
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrNoSourceCredentials, err)
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return Credentials{}, ErrNoSourceCredentials
	}

	return Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, nil
}

// GetWebIdentityToken asks STS to mint a signed JWT for the given audience.
func (s *SDKService) GetWebIdentityToken(ctx context.Context, audience string, durationSeconds int32) (string, error) {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return "", err
	}

	if cfg.Credentials == nil {
		return "", ErrNoSourceCredentials
	}

	out, err := s.stsFactory.NewFromConfig(cfg).GetWebIdentityToken(ctx, &sts.GetWebIdentityTokenInput{
		Audience:         []string{audience},
		SigningAlgorithm: awsv2.String(webIdentitySigningAlgorithm),
		DurationSeconds:  awsv2.Int32(durationSeconds),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("STS GetWebIdentityToken rejected with %s: %w", apiErr.ErrorCode(), err)
		}
		return "", fmt.Errorf("STS GetWebIdentityToken failed: %w", err)
	}

	token := awsv2.ToString(out.WebIdentityToken)
	if token == "" {
		return "", fmt.Errorf("STS GetWebIdentityToken returned an empty token")
	}
	return token, nil
}
