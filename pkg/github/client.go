// Package github wraps the GitHub GraphQL API behind a rate-budget-aware
// client. Transient failures retry with exponential backoff; rate-limit
// exhaustion blocks the calling goroutine until the reported reset.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v55/github"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"github.com/Xenorf/gh-workflow-auditor/pkg/errors"
)

const (
	// DefaultEndpoint is the public GitHub API base URL.
	DefaultEndpoint = "https://api.github.com"

	// defaultCallCost is the assumed point cost of one query when the
	// server has not reported a cost yet.
	defaultCallCost = 1

	transientRetryCeiling = 4
)

// Client issues GraphQL calls against one endpoint with one token and one
// shared rate budget.
type Client struct {
	graphqlURL string
	httpClient *http.Client
	rest       *gogithub.Client
	budget     *Budget
	log        hclog.Logger
}

// Option adjusts a client after endpoint derivation.
type Option func(*Client)

// WithGraphQLEndpoint overrides the derived GraphQL URL. Used by tests that
// point the client at a mock server.
func WithGraphQLEndpoint(url string) Option {
	return func(c *Client) { c.graphqlURL = url }
}

// NewClient builds a client for the given endpoint. A custom endpoint is
// treated as a GitHub Enterprise instance, which serves REST under /api/v3
// and GraphQL under /api/graphql.
func NewClient(token, apiURL string, log hclog.Logger, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.NewConfigError("no API token provided", nil)
	}
	if apiURL == "" {
		apiURL = DefaultEndpoint
	}
	apiURL = strings.TrimSuffix(apiURL, "/")

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	authClient := oauth2.NewClient(context.Background(), source)

	retry := retryablehttp.NewClient()
	retry.HTTPClient = authClient
	retry.RetryMax = transientRetryCeiling
	retry.RetryWaitMin = 500 * time.Millisecond
	retry.RetryWaitMax = 30 * time.Second
	retry.Logger = nil

	var (
		rest       *gogithub.Client
		graphqlURL string
		err        error
	)
	if apiURL == DefaultEndpoint {
		rest = gogithub.NewClient(retry.StandardClient())
		graphqlURL = apiURL + "/graphql"
	} else {
		log.Debug("custom GitHub instance used", "endpoint", apiURL)
		rest, err = gogithub.NewClient(retry.StandardClient()).WithEnterpriseURLs(apiURL, apiURL)
		if err != nil {
			return nil, errors.NewConfigError("invalid API endpoint", err)
		}
		graphqlURL = apiURL + "/api/graphql"
	}

	client := &Client{
		graphqlURL: graphqlURL,
		httpClient: retry.StandardClient(),
		rest:       rest,
		budget:     NewBudget(),
		log:        log,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Budget exposes the client's rate budget, mainly for tests and summaries.
func (c *Client) Budget() *Budget { return c.budget }

// ValidateToken verifies the token against the REST endpoint before any
// scanning starts. A 401 or 403 here is a configuration error, not a
// per-repository one.
func (c *Client) ValidateToken(ctx context.Context) error {
	user, _, err := c.rest.Users.Get(ctx, "")
	if err != nil {
		return errors.NewConfigError("GitHub token validation failed", err)
	}
	c.log.Debug("GitHub token is valid", "login", user.GetLogin())
	return nil
}

// GraphQLError is one entry of a GraphQL response's errors array.
type GraphQLError struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Path    []string `json:"-"`
}

// Response is a decoded GraphQL envelope. Data and Errors can both be
// populated: GitHub reports per-field access failures alongside the fields
// it could resolve.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// HasErrorType reports whether any error entry carries the given type.
func (r *Response) HasErrorType(errorType string) bool {
	for _, entry := range r.Errors {
		if entry.Type == errorType {
			return true
		}
	}
	return false
}

// Decode unmarshals the data block into out.
func (r *Response) Decode(out interface{}) error {
	return json.Unmarshal(r.Data, out)
}

type rateLimitInfo struct {
	Cost      int       `json:"cost"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Do executes one GraphQL query. It consults the budget before issuing the
// call, updates it from the response whether the call succeeded or not, and
// retries exactly once after a rate-limit rejection by waiting out the
// reset. Transport-level retries for transient failures happen inside the
// HTTP client.
func (c *Client) Do(ctx context.Context, query string, variables map[string]interface{}) (*Response, error) {
	if err := c.budget.Wait(ctx, defaultCallCost); err != nil {
		return nil, err
	}

	response, err := c.post(ctx, query, variables)
	if err != nil {
		return nil, err
	}

	if response.HasErrorType("RATE_LIMITED") {
		_, resetAt, _ := c.budget.Snapshot()
		c.log.Info("rate limit exhausted, waiting for reset", "resetAt", resetAt)
		if err := c.budget.Wait(ctx, defaultCallCost); err != nil {
			return nil, err
		}
		response, err = c.post(ctx, query, variables)
		if err != nil {
			return nil, err
		}
		if response.HasErrorType("RATE_LIMITED") {
			return nil, errors.NewRateLimitError("rate limit still exhausted after reset wait", resetAt)
		}
	}

	return response, nil
}

func (c *Client) post(ctx context.Context, query string, variables map[string]interface{}) (*Response, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding GraphQL request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building GraphQL request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	httpResponse, err := c.httpClient.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewTransientError("GraphQL request failed after retries", err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, errors.NewTransientError("reading GraphQL response", err)
	}

	switch {
	case httpResponse.StatusCode == http.StatusUnauthorized:
		return nil, errors.NewConfigError("GraphQL endpoint rejected the token", nil)
	case httpResponse.StatusCode == http.StatusForbidden:
		return nil, errors.NewRateLimitError("GraphQL endpoint returned 403", time.Time{})
	case httpResponse.StatusCode != http.StatusOK:
		return nil, errors.NewTransientError(
			fmt.Sprintf("GraphQL endpoint returned status %d", httpResponse.StatusCode), nil)
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.NewTransientError("decoding GraphQL response", err)
	}

	c.refreshBudget(&response)
	return &response, nil
}

// refreshBudget picks the rateLimit block out of the data payload. Not all
// failures include one; a missing block leaves the budget untouched.
func (c *Client) refreshBudget(response *Response) {
	if len(response.Data) == 0 {
		return
	}
	var envelope struct {
		RateLimit *rateLimitInfo `json:"rateLimit"`
	}
	if err := json.Unmarshal(response.Data, &envelope); err != nil || envelope.RateLimit == nil {
		return
	}
	c.budget.Update(envelope.RateLimit.Remaining, envelope.RateLimit.ResetAt)
}

// OwnerExists checks whether a login still resolves to a user or an
// organization. A vanished owner of a referenced action is a repo-jacking
// risk.
func (c *Client) OwnerExists(ctx context.Context, login string) (bool, error) {
	response, err := c.Do(ctx, ownerExistsQuery, map[string]interface{}{"login": login})
	if err != nil {
		return false, err
	}

	var result struct {
		User         *struct{ Login string } `json:"user"`
		Organization *struct{ Login string } `json:"organization"`
	}
	if err := response.Decode(&result); err != nil {
		return false, errors.NewTransientError("decoding owner lookup", err)
	}
	return result.User != nil || result.Organization != nil, nil
}
