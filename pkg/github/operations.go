package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/Xenorf/gh-workflow-auditor/pkg/errors"
)

// RepositoryOwner is the owner block of a repository node.
type RepositoryOwner struct {
	Login string `json:"login"`
}

// Repository is one node of an owner's repository listing.
type Repository struct {
	Name       string          `json:"name"`
	IsArchived bool            `json:"isArchived"`
	IsEmpty    bool            `json:"isEmpty"`
	Owner      RepositoryOwner `json:"owner"`
}

// FullName returns owner/name.
func (r Repository) FullName() string {
	return r.Owner.Login + "/" + r.Name
}

// RepositoryPage is one page of an owner's repositories together with the
// cursor needed to request the next one.
type RepositoryPage struct {
	Repositories []Repository
	HasNextPage  bool
	EndCursor    string
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type repositoryConnection struct {
	Nodes    []Repository `json:"nodes"`
	PageInfo pageInfo     `json:"pageInfo"`
}

// ListOrganizationRepositories fetches one page of an organization's own
// repositories. Pass an empty cursor for the first page.
func (c *Client) ListOrganizationRepositories(ctx context.Context, login, cursor string, pageSize int) (*RepositoryPage, error) {
	response, err := c.Do(ctx, organizationRepositoriesQuery, pageVariables(login, cursor, pageSize))
	if err != nil {
		return nil, err
	}
	if err := ownerError(response, login); err != nil {
		return nil, err
	}

	var result struct {
		Organization *struct {
			Repositories repositoryConnection `json:"repositories"`
		} `json:"organization"`
	}
	if err := response.Decode(&result); err != nil {
		return nil, errors.NewTransientError("decoding organization repositories", err)
	}
	if result.Organization == nil {
		return nil, errors.NewRepositoryAccessError(
			fmt.Sprintf("organization %q not found or not accessible", login), nil, login)
	}
	return pageFromConnection(result.Organization.Repositories), nil
}

// ListUserRepositories fetches one page of a user's own repositories.
func (c *Client) ListUserRepositories(ctx context.Context, login, cursor string, pageSize int) (*RepositoryPage, error) {
	response, err := c.Do(ctx, userRepositoriesQuery, pageVariables(login, cursor, pageSize))
	if err != nil {
		return nil, err
	}
	if err := ownerError(response, login); err != nil {
		return nil, err
	}

	var result struct {
		User *struct {
			Repositories repositoryConnection `json:"repositories"`
		} `json:"user"`
	}
	if err := response.Decode(&result); err != nil {
		return nil, errors.NewTransientError("decoding user repositories", err)
	}
	if result.User == nil {
		return nil, errors.NewRepositoryAccessError(
			fmt.Sprintf("user %q not found or not accessible", login), nil, login)
	}
	return pageFromConnection(result.User.Repositories), nil
}

func pageVariables(login, cursor string, pageSize int) map[string]interface{} {
	variables := map[string]interface{}{
		"login":    login,
		"pageSize": pageSize,
	}
	if cursor == "" {
		variables["cursor"] = nil
	} else {
		variables["cursor"] = cursor
	}
	return variables
}

func pageFromConnection(connection repositoryConnection) *RepositoryPage {
	return &RepositoryPage{
		Repositories: connection.Nodes,
		HasNextPage:  connection.PageInfo.HasNextPage,
		EndCursor:    connection.PageInfo.EndCursor,
	}
}

// ownerError maps GraphQL error entries for a missing or forbidden owner to
// a repository access error. Other error types pass through as nil so the
// caller can inspect the partial data.
func ownerError(response *Response, login string) error {
	if response.HasErrorType("NOT_FOUND") && len(response.Data) == 0 {
		return errors.NewRepositoryAccessError(
			fmt.Sprintf("%q does not exist", login), nil, login)
	}
	if response.HasErrorType("FORBIDDEN") {
		return errors.NewRepositoryAccessError(
			fmt.Sprintf("access to %q is forbidden", login), nil, login)
	}
	return nil
}

// WorkflowFile is one file found under .github/workflows.
type WorkflowFile struct {
	Name    string
	Content string
}

// FetchWorkflows returns the workflow files of a repository. A repository
// with no .github/workflows directory yields an empty slice. Access
// failures on the repository itself surface as a repository access error so
// the caller can skip the repository and keep going.
func (c *Client) FetchWorkflows(ctx context.Context, owner, name string) ([]WorkflowFile, error) {
	response, err := c.Do(ctx, repositoryWorkflowsQuery, map[string]interface{}{
		"owner": owner,
		"name":  name,
	})
	if err != nil {
		return nil, err
	}

	full := owner + "/" + name
	if response.HasErrorType("NOT_FOUND") || response.HasErrorType("FORBIDDEN") {
		return nil, errors.NewRepositoryAccessError("repository not accessible", nil, full)
	}

	var result struct {
		Repository *struct {
			Object *struct {
				Entries []struct {
					Name   string `json:"name"`
					Type   string `json:"type"`
					Object *struct {
						Text string `json:"text"`
					} `json:"object"`
				} `json:"entries"`
			} `json:"object"`
		} `json:"repository"`
	}
	if err := response.Decode(&result); err != nil {
		return nil, errors.NewTransientError("decoding repository workflows", err)
	}
	if result.Repository == nil {
		return nil, errors.NewRepositoryAccessError("repository not accessible", nil, full)
	}
	if result.Repository.Object == nil {
		return nil, nil
	}

	var files []WorkflowFile
	for _, entry := range result.Repository.Object.Entries {
		if entry.Type != "blob" || entry.Object == nil {
			continue
		}
		if !isWorkflowFileName(entry.Name) {
			continue
		}
		files = append(files, WorkflowFile{Name: entry.Name, Content: entry.Object.Text})
	}
	return files, nil
}

func isWorkflowFileName(name string) bool {
	return strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml")
}
