package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	awslib "github.com/SaadAlam/aws-outbound-federation-demo/pkg/aws"
	"github.com/SaadAlam/aws-outbound-federation-demo/pkg/config"
	"github.com/SaadAlam/aws-outbound-federation-demo/pkg/federation"
)

// ChainRunner is the part of federation.Chain the commands drive.
type ChainRunner interface {
	Run(ctx context.Context) (federation.Result, error)
	Verify(ctx context.Context) ([]byte, error)
}

type runDeps struct {
	loadConfig  func() (config.Config, error)
	newChain    func(cfg config.Config, logger *log.Logger) (ChainRunner, error)
	newService  func(cfg config.Config) awslib.Service
	startLambda func(handler interface{})
	stdout      io.Writer
	stderr      io.Writer
}

type workflowRunner func(ctx context.Context, cfg config.Config, deps runDeps) error

type rootOptions struct {
	profile            string
	subjectTokenSource string
}

// NewRootCmd creates the root CLI command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultRunDeps(), runWorkflow)
}

func newRootCmd(deps runDeps, runner workflowRunner) *cobra.Command {
	var opts rootOptions

	rootCmd := &cobra.Command{
		Use:   "aws-outbound-federation",
		Short: "Write to Google Cloud Storage using AWS credentials",
		Long: `Proves the current AWS identity to Google Cloud through Workload Identity
Federation, impersonates a service account and writes a fixed payload to a
Cloud Storage bucket. No Google credentials are stored on the AWS side.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(deps, opts)
			if err != nil {
				return err
			}
			return runner(context.Background(), cfg, deps)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.profile, "profile", "p", "", "AWS profile to use (defaults to AWS_PROFILE env var)")
	rootCmd.PersistentFlags().StringVar(&opts.subjectTokenSource, "subject-token-source", "",
		fmt.Sprintf("subject token source, %q or %q (defaults to SUBJECT_TOKEN_SOURCE env var)", awslib.SignerKindAWS4Request, awslib.SignerKindJWT))

	rootCmd.AddCommand(
		newLambdaCmd(deps, &opts),
		newIdentityCmd(deps, &opts),
		newVerifyCmd(deps, &opts),
	)

	return rootCmd
}

func newLambdaCmd(deps runDeps, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Serve the federation chain as an AWS Lambda handler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(deps, *opts)
			if err != nil {
				return err
			}
			return startLambda(cfg, deps)
		},
	}
}

func newIdentityCmd(deps runDeps, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print the AWS identity the chain will federate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(deps, *opts)
			if err != nil {
				return err
			}
			identity, err := deps.newService(cfg).GetCallerIdentity(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(deps.stdout, "Authenticated as: %s\n", identity.Arn)
			return nil
		},
	}
}

func newVerifyCmd(deps runDeps, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Read the written object back through the same chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(deps, *opts)
			if err != nil {
				return err
			}
			return runVerify(context.Background(), cfg, deps)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func defaultRunDeps() runDeps {
	return runDeps{
		loadConfig: func() (config.Config, error) {
			return config.Load(nil)
		},
		newChain: func(cfg config.Config, logger *log.Logger) (ChainRunner, error) {
			return federation.NewFromConfig(cfg, logger)
		},
		newService: func(cfg config.Config) awslib.Service {
			return awslib.NewService(awslib.ServiceOptions{
				Profile:     cfg.Profile,
				Region:      cfg.Region,
				STSEndpoint: cfg.AWSSTSEndpoint,
			})
		},
		startLambda: lambda.Start,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
}

// resolveConfig loads the environment and applies flag overrides on top.
func resolveConfig(deps runDeps, opts rootOptions) (config.Config, error) {
	cfg, err := deps.loadConfig()
	if err != nil {
		return config.Config{}, err
	}

	if opts.profile != "" {
		cfg.Profile = opts.profile
	}
	if opts.subjectTokenSource != "" {
		kind, err := awslib.ParseSignerKind(opts.subjectTokenSource)
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
		cfg.SubjectTokenSource = kind
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func buildChain(cfg config.Config, deps runDeps) (ChainRunner, *log.Logger, error) {
	logger, err := newLogger(deps.stderr, cfg)
	if err != nil {
		return nil, nil, err
	}
	chain, err := deps.newChain(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build federation chain: %w", err)
	}
	return chain, logger, nil
}

func runWorkflow(ctx context.Context, cfg config.Config, deps runDeps) error {
	chain, logger, err := buildChain(cfg, deps)
	if err != nil {
		return err
	}

	result, err := chain.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("Uploaded object", "bucket", result.Bucket, "object", result.Object, "generation", result.Generation)
	fmt.Fprintln(deps.stdout, "Success")
	return nil
}

func runVerify(ctx context.Context, cfg config.Config, deps runDeps) error {
	chain, _, err := buildChain(cfg, deps)
	if err != nil {
		return err
	}

	data, err := chain.Verify(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(deps.stdout, "gs://%s/%s: %s\n", cfg.Bucket, cfg.ObjectName, data)
	return nil
}

// startLambda builds the chain once for the container and hands the handler
// to the Lambda runtime, which does not return.
func startLambda(cfg config.Config, deps runDeps) error {
	chain, logger, err := buildChain(cfg, deps)
	if err != nil {
		return err
	}

	logger.Info("Starting Lambda handler", "bucket", cfg.Bucket, "signer", cfg.SubjectTokenSource)
	deps.startLambda(NewHandler(chain, logger).Handle)
	return nil
}
