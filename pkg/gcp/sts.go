package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	grantTypeTokenExchange  = "urn:ietf:params:oauth:grant-type:token-exchange"
	tokenTypeAccessToken    = "urn:ietf:params:oauth:token-type:access_token"
	defaultHTTPTimeout      = 15 * time.Second
	maxResponseBodyReadSize = 1 << 20
)

type tokenExchangeRequest struct {
	GrantType          string `json:"grant_type"`
	Audience           string `json:"audience"`
	RequestedTokenType string `json:"requested_token_type"`
	SubjectTokenType   string `json:"subject_token_type"`
	SubjectToken       string `json:"subject_token"`
	Scope              string `json:"scope"`
}

type tokenExchangeResponse struct {
	AccessToken     string `json:"access_token"`
	IssuedTokenType string `json:"issued_token_type"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in"`
}

// STSClient calls the Google STS endpoint to exchange subject tokens.
type STSClient struct {
	client   HTTPDoer
	endpoint string
	now      func() time.Time
}

// NewSTSClient creates an STS client using the given transport and endpoint.
// Empty values fall back to a default client and the public endpoint.
func NewSTSClient(client HTTPDoer, endpoint string) *STSClient {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if endpoint == "" {
		endpoint = DefaultSTSEndpoint
	}
	return newSTSClient(client, endpoint)
}

func newSTSClient(client HTTPDoer, endpoint string) *STSClient {
	return &STSClient{
		client:   client,
		endpoint: endpoint,
		now:      time.Now,
	}
}

// ExchangeToken exchanges a subject token for a federated access token.
func (c *STSClient) ExchangeToken(ctx context.Context, in ExchangeRequest) (*oauth2.Token, error) {
	payload, err := json.Marshal(tokenExchangeRequest{
		GrantType:          grantTypeTokenExchange,
		Audience:           in.Audience,
		RequestedTokenType: tokenTypeAccessToken,
		SubjectTokenType:   in.SubjectTokenType,
		SubjectToken:       in.SubjectToken,
		Scope:              strings.Join(in.Scopes, " "),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build token exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyReadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token exchange response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Endpoint: c.endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokenResp tokenExchangeResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token exchange response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("received empty access token from %s", c.endpoint)
	}

	token := &oauth2.Token{
		AccessToken: tokenResp.AccessToken,
		TokenType:   tokenResp.TokenType,
	}
	if tokenResp.ExpiresIn > 0 {
		token.Expiry = c.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}
	return token, nil
}
