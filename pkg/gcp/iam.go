package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iamcredentials/v1"
	"google.golang.org/api/option"
)

// IAMCredentialsService provides access to IAM Credentials API token generation.
type IAMCredentialsService interface {
	GenerateAccessToken(ctx context.Context, name string, req *iamcredentials.GenerateAccessTokenRequest) (*iamcredentials.GenerateAccessTokenResponse, error)
}

// IAMCredentialsServiceFactory creates an IAM Credentials service authorized with token.
type IAMCredentialsServiceFactory func(ctx context.Context, token *oauth2.Token) (IAMCredentialsService, error)

type iamCredentialsService struct {
	svc *iamcredentials.Service
}

func (s *iamCredentialsService) GenerateAccessToken(ctx context.Context, name string, req *iamcredentials.GenerateAccessTokenRequest) (*iamcredentials.GenerateAccessTokenResponse, error) {
	return s.svc.Projects.ServiceAccounts.GenerateAccessToken(name, req).Context(ctx).Do()
}

// IAMCredentialsClient impersonates service accounts through the IAM Credentials API.
type IAMCredentialsClient struct {
	endpoint string
	factory  IAMCredentialsServiceFactory
}

// NewIAMCredentialsClient creates an impersonation client. The federated token is
// attached to every request through an oauth2 transport layered over base.
func NewIAMCredentialsClient(base *http.Client, endpoint string) *IAMCredentialsClient {
	if base == nil {
		base = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if endpoint == "" {
		endpoint = DefaultIAMCredentialsEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	c := &IAMCredentialsClient{endpoint: endpoint}
	c.factory = func(ctx context.Context, token *oauth2.Token) (IAMCredentialsService, error) {
		svc, err := iamcredentials.NewService(ctx,
			option.WithHTTPClient(authorizedClient(ctx, base, token)),
			option.WithEndpoint(endpoint),
		)
		if err != nil {
			return nil, err
		}
		return &iamCredentialsService{svc: svc}, nil
	}
	return c
}

func newIAMCredentialsClient(endpoint string, factory IAMCredentialsServiceFactory) *IAMCredentialsClient {
	return &IAMCredentialsClient{endpoint: endpoint, factory: factory}
}

// GenerateAccessToken exchanges the federated token for an access token of the
// service account limited to scopes.
func (c *IAMCredentialsClient) GenerateAccessToken(ctx context.Context, federated *oauth2.Token, serviceAccountEmail string, scopes []string) (*oauth2.Token, error) {
	if federated == nil || federated.AccessToken == "" {
		return nil, fmt.Errorf("federated token is required")
	}

	svc, err := c.factory(ctx, federated)
	if err != nil {
		return nil, fmt.Errorf("failed to create IAM credentials service: %w", err)
	}

	name := fmt.Sprintf("projects/-/serviceAccounts/%s", serviceAccountEmail)
	resp, err := svc.GenerateAccessToken(ctx, name, &iamcredentials.GenerateAccessTokenRequest{
		Scope: scopes,
	})
	if err != nil {
		endpoint := c.endpoint + "v1/" + name + ":generateAccessToken"
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, &UpstreamError{Endpoint: endpoint, StatusCode: apiErr.Code, Body: apiErr.Body}
		}
		return nil, fmt.Errorf("failed to call %s: %w", endpoint, err)
	}

	if resp.AccessToken == "" {
		return nil, fmt.Errorf("received empty access token for %s", serviceAccountEmail)
	}

	token := &oauth2.Token{
		AccessToken: resp.AccessToken,
		TokenType:   "Bearer",
	}
	if expiry, err := time.Parse(time.RFC3339, resp.ExpireTime); err == nil {
		token.Expiry = expiry
	}
	return token, nil
}

// authorizedClient layers a static bearer token over base's transport.
func authorizedClient(ctx context.Context, base *http.Client, token *oauth2.Token) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	client.Timeout = base.Timeout
	return client
}
