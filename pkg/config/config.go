// Package config loads the federation chain configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	awslib "github.com/SaadAlam/aws-outbound-federation-demo/pkg/aws"
)

// DefaultObjectName is the object written by every run.
const DefaultObjectName = "output_data.txt"

// ErrInvalidConfig is returned when required settings are missing or malformed.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the explicit configuration passed to the chain.
type Config struct {
	ServiceAccountEmail string `env:"GCP_SA_EMAIL,required,notEmpty"`
	PoolProvider        string `env:"WIF_POOL_PROVIDER,required,notEmpty"`
	Bucket              string `env:"GCS_BUCKET_NAME,required,notEmpty"`
	ObjectName          string `env:"GCS_OBJECT_NAME" envDefault:"output_data.txt"`

	Region         string `env:"AWS_REGION" envDefault:"us-east-1"`
	Profile        string `env:"AWS_PROFILE"`
	AWSSTSEndpoint string `env:"AWS_STS_ENDPOINT"`

	SubjectTokenSource   awslib.SignerKind `env:"SUBJECT_TOKEN_SOURCE" envDefault:"aws4_request"`
	SubjectTokenAudience string            `env:"SUBJECT_TOKEN_AUDIENCE"`

	STSEndpoint            string        `env:"GCP_STS_ENDPOINT" envDefault:"https://sts.googleapis.com/v1/token"`
	IAMCredentialsEndpoint string        `env:"GCP_IAM_CREDENTIALS_ENDPOINT" envDefault:"https://iamcredentials.googleapis.com/"`
	StorageEndpoint        string        `env:"GCP_STORAGE_ENDPOINT" envDefault:"https://storage.googleapis.com"`
	HTTPTimeout            time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load parses configuration from environ, or from the process environment when
// environ is nil.
func Load(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that the environment parser cannot.
func (c Config) Validate() error {
	if c.ServiceAccountEmail == "" || c.PoolProvider == "" || c.Bucket == "" {
		return fmt.Errorf("%w: GCP_SA_EMAIL, WIF_POOL_PROVIDER and GCS_BUCKET_NAME are required", ErrInvalidConfig)
	}
	if _, err := awslib.ParseSignerKind(string(c.SubjectTokenSource)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.SubjectTokenSource == awslib.SignerKindAWS4Request && c.Region == "" {
		return fmt.Errorf("%w: AWS_REGION is required for %s subject tokens", ErrInvalidConfig, c.SubjectTokenSource)
	}
	if c.ObjectName == "" {
		return fmt.Errorf("%w: GCS_OBJECT_NAME must not be empty", ErrInvalidConfig)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: LOG_FORMAT must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
