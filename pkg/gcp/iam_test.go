package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/iamcredentials/v1"
)

const testServiceAccount = "svc@project.iam.gserviceaccount.com"

type fakeIAMService struct {
	resp *iamcredentials.GenerateAccessTokenResponse
	err  error
}

func (f fakeIAMService) GenerateAccessToken(ctx context.Context, name string, req *iamcredentials.GenerateAccessTokenRequest) (*iamcredentials.GenerateAccessTokenResponse, error) {
	return f.resp, f.err
}

func TestIAMCredentialsClientGenerateAccessToken(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		responseBody  string
		wantErrSubstr string
		wantUpstream  bool
	}{
		{
			name:         "success",
			statusCode:   http.StatusOK,
			responseBody: `{"accessToken":"impersonated-456","expireTime":"2026-01-01T01:00:00Z"}`,
		},
		{
			name:          "permission denied",
			statusCode:    http.StatusForbidden,
			responseBody:  `{"error":{"code":403,"message":"Permission 'iam.serviceAccounts.getAccessToken' denied","status":"PERMISSION_DENIED"}}`,
			wantErrSubstr: "returned HTTP 403",
			wantUpstream:  true,
		},
		{
			name:          "empty access token",
			statusCode:    http.StatusOK,
			responseBody:  `{"expireTime":"2026-01-01T01:00:00Z"}`,
			wantErrSubstr: "received empty access token for " + testServiceAccount,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/projects/-/serviceAccounts/"+testServiceAccount+":generateAccessToken", r.URL.Path)
				assert.Equal(t, "Bearer federated-123", r.Header.Get("Authorization"))

				var body struct {
					Scope []string `json:"scope"`
				}
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, []string{ScopeStorageReadWrite}, body.Scope)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte(tc.responseBody))
			}))
			defer server.Close()

			client := NewIAMCredentialsClient(server.Client(), server.URL)
			token, err := client.GenerateAccessToken(
				context.Background(),
				&oauth2.Token{AccessToken: "federated-123", TokenType: "Bearer"},
				testServiceAccount,
				[]string{ScopeStorageReadWrite},
			)

			if tc.wantErrSubstr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErrSubstr)
				assert.Equal(t, tc.wantUpstream, errors.Is(err, ErrUpstreamRejected))
				if tc.wantUpstream {
					var upstream *UpstreamError
					require.ErrorAs(t, err, &upstream)
					assert.Equal(t, http.StatusForbidden, upstream.StatusCode)
					assert.Contains(t, upstream.Body, "PERMISSION_DENIED")
					assert.Contains(t, upstream.Endpoint, ":generateAccessToken")
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "impersonated-456", token.AccessToken)
			assert.Equal(t, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC), token.Expiry.UTC())
		})
	}
}

func TestIAMCredentialsClientGenerateAccessTokenErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		token         *oauth2.Token
		factory       IAMCredentialsServiceFactory
		wantErrSubstr string
	}{
		{
			name:          "missing federated token",
			token:         nil,
			wantErrSubstr: "federated token is required",
		},
		{
			name:  "service creation failure",
			token: &oauth2.Token{AccessToken: "federated-123"},
			factory: func(ctx context.Context, token *oauth2.Token) (IAMCredentialsService, error) {
				return nil, errors.New("bad endpoint")
			},
			wantErrSubstr: "failed to create IAM credentials service: bad endpoint",
		},
		{
			name:  "transport failure",
			token: &oauth2.Token{AccessToken: "federated-123"},
			factory: func(ctx context.Context, token *oauth2.Token) (IAMCredentialsService, error) {
				return fakeIAMService{err: errors.New("connection reset")}, nil
			},
			wantErrSubstr: "failed to call https://iamcredentials.googleapis.com/v1/projects/-/serviceAccounts/" + testServiceAccount + ":generateAccessToken: connection reset",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := newIAMCredentialsClient(DefaultIAMCredentialsEndpoint, tc.factory)
			_, err := client.GenerateAccessToken(context.Background(), tc.token, testServiceAccount, []string{ScopeStorageReadWrite})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErrSubstr)
			assert.False(t, errors.Is(err, ErrUpstreamRejected))
		})
	}
}
