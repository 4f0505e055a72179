package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xenorf/gh-workflow-auditor/pkg/errors"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient("test-token", DefaultEndpoint, hclog.NewNullLogger(),
		WithGraphQLEndpoint(server.URL))
	require.NoError(t, err)
	return client
}

func rateLimitJSON(remaining int, resetAt time.Time) string {
	return fmt.Sprintf(`{"cost":1,"remaining":%d,"resetAt":%q}`,
		remaining, resetAt.UTC().Format(time.RFC3339))
}

func TestNewClientEndpoints(t *testing.T) {
	log := hclog.NewNullLogger()

	public, err := NewClient("token", "", log)
	require.NoError(t, err)
	assert.Equal(t, "https://api.github.com/graphql", public.graphqlURL)

	enterprise, err := NewClient("token", "https://ghes.example.com", log)
	require.NoError(t, err)
	assert.Equal(t, "https://ghes.example.com/api/graphql", enterprise.graphqlURL)

	_, err = NewClient("", "", log)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestDoRefreshesBudget(t *testing.T) {
	resetAt := time.Now().Add(time.Hour).Truncate(time.Second)
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{"rateLimit":%s}}`, rateLimitJSON(42, resetAt))
	}))

	_, err := client.Do(context.Background(), ownerExistsQuery, nil)
	require.NoError(t, err)

	remaining, gotReset, known := client.Budget().Snapshot()
	assert.True(t, known)
	assert.Equal(t, 42, remaining)
	assert.WithinDuration(t, resetAt, gotReset, time.Second)
}

func TestDoWaitsOutRateLimitAndRetriesOnce(t *testing.T) {
	resetAt := time.Now().Add(200 * time.Millisecond)
	var calls int
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprintf(w, `{"data":{"rateLimit":%s},"errors":[{"type":"RATE_LIMITED","message":"API rate limit exceeded"}]}`,
				rateLimitJSON(0, resetAt))
			return
		}
		fmt.Fprintf(w, `{"data":{"rateLimit":%s}}`, rateLimitJSON(4999, resetAt.Add(time.Hour)))
	}))

	start := time.Now()
	_, err := client.Do(context.Background(), ownerExistsQuery, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestDoRateLimitWaitHonorsCancellation(t *testing.T) {
	resetAt := time.Now().Add(time.Hour)
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{"rateLimit":%s},"errors":[{"type":"RATE_LIMITED","message":"API rate limit exceeded"}]}`,
			rateLimitJSON(0, resetAt))
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Do(ctx, ownerExistsQuery, nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRateLimit))
}

func TestDoRetriesTransientServerErrors(t *testing.T) {
	var calls int
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"data":{"rateLimit":%s}}`, rateLimitJSON(100, time.Now().Add(time.Hour)))
	}))

	_, err := client.Do(context.Background(), ownerExistsQuery, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestListOrganizationRepositories(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Variables map[string]interface{} `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "demo-org", request.Variables["login"])

		fmt.Fprintf(w, `{"data":{
			"organization":{"repositories":{
				"nodes":[
					{"name":"alpha","owner":{"login":"demo-org"},"isArchived":false,"isEmpty":false},
					{"name":"beta","owner":{"login":"demo-org"},"isArchived":true,"isEmpty":false}
				],
				"pageInfo":{"hasNextPage":true,"endCursor":"cursor-1"}
			}},
			"rateLimit":%s}}`, rateLimitJSON(100, time.Now().Add(time.Hour)))
	}))

	page, err := client.ListOrganizationRepositories(context.Background(), "demo-org", "", 100)
	require.NoError(t, err)
	require.Len(t, page.Repositories, 2)
	assert.Equal(t, "demo-org/alpha", page.Repositories[0].FullName())
	assert.True(t, page.Repositories[1].IsArchived)
	assert.True(t, page.HasNextPage)
	assert.Equal(t, "cursor-1", page.EndCursor)
}

func TestListOrganizationRepositoriesNotFound(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":null,"errors":[{"type":"NOT_FOUND","message":"Could not resolve to an Organization"}]}`)
	}))

	_, err := client.ListOrganizationRepositories(context.Background(), "ghost-org", "", 100)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRepositoryAccess))
}

func TestFetchWorkflows(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{
			"repository":{
				"nameWithOwner":"demo-org/alpha",
				"isArchived":false,
				"object":{"entries":[
					{"name":"ci.yml","type":"blob","object":{"text":"name: ci"}},
					{"name":"release.yaml","type":"blob","object":{"text":"name: release"}},
					{"name":"README.md","type":"blob","object":{"text":"docs"}},
					{"name":"scripts","type":"tree","object":null}
				]}
			},
			"rateLimit":%s}}`, rateLimitJSON(100, time.Now().Add(time.Hour)))
	}))

	files, err := client.FetchWorkflows(context.Background(), "demo-org", "alpha")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "ci.yml", files[0].Name)
	assert.Equal(t, "name: ci", files[0].Content)
	assert.Equal(t, "release.yaml", files[1].Name)
}

func TestFetchWorkflowsNoWorkflowDirectory(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{
			"repository":{"nameWithOwner":"demo-org/bare","isArchived":false,"object":null},
			"rateLimit":%s}}`, rateLimitJSON(100, time.Now().Add(time.Hour)))
	}))

	files, err := client.FetchWorkflows(context.Background(), "demo-org", "bare")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFetchWorkflowsAccessDenied(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"repository":null},"errors":[{"type":"FORBIDDEN","message":"Resource not accessible"}]}`)
	}))

	_, err := client.FetchWorkflows(context.Background(), "demo-org", "private")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRepositoryAccess))
}

func TestOwnerExists(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{
			"user":{"login":"octocat"},
			"organization":null,
			"rateLimit":%s}}`, rateLimitJSON(100, time.Now().Add(time.Hour)))
	}))

	exists, err := client.OwnerExists(context.Background(), "octocat")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOwnerExistsVanished(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{
			"user":null,
			"organization":null,
			"rateLimit":%s},
			"errors":[{"type":"NOT_FOUND","message":"Could not resolve to a User"}]}`,
			rateLimitJSON(100, time.Now().Add(time.Hour)))
	}))

	exists, err := client.OwnerExists(context.Background(), "vanished-owner")
	require.NoError(t, err)
	assert.False(t, exists)
}
