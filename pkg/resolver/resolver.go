// Package resolver turns an input identifier (repository, organization, or
// user) into a lazy stream of workflow documents. Organization and user
// traversal is cursor-paginated; per-repository workflow fetches run on a
// bounded worker pool.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/Xenorf/gh-workflow-auditor/pkg/errors"
	"github.com/Xenorf/gh-workflow-auditor/pkg/github"
)

// EntityType tells the resolver how to interpret the identifier.
type EntityType string

const (
	EntityRepository   EntityType = "repo"
	EntityOrganization EntityType = "org"
	EntityUser         EntityType = "user"
)

// ParseEntityType validates a user-supplied entity type string.
func ParseEntityType(value string) (EntityType, error) {
	switch EntityType(value) {
	case EntityRepository, EntityOrganization, EntityUser:
		return EntityType(value), nil
	}
	return "", errors.NewConfigError(
		fmt.Sprintf("unknown entity type %q (expected repo, org, or user)", value), nil)
}

const (
	// DefaultPageSize is the repository page size for org/user traversal.
	DefaultPageSize = 100

	// DefaultWorkers bounds concurrent per-repository workflow fetches.
	DefaultWorkers = 4

	// cursorStallLimit is how many consecutive identical cursors the
	// pagination loop tolerates before declaring the traversal broken.
	cursorStallLimit = 3
)

// WorkflowDocument is one raw workflow file tagged with its origin.
// Immutable once fetched.
type WorkflowDocument struct {
	Owner   string
	Name    string
	Path    string
	Content string
}

// Repository returns owner/name.
func (d WorkflowDocument) Repository() string {
	return d.Owner + "/" + d.Name
}

// RepositoryResult is the resolver's output for one repository: either its
// workflow documents, or a skip reason when the repository yielded nothing
// scannable.
type RepositoryResult struct {
	Repository string
	Documents  []WorkflowDocument
	SkipReason string
}

// Skipped reports whether the repository was skipped rather than scanned.
func (r RepositoryResult) Skipped() bool { return r.SkipReason != "" }

// Resolver enumerates repositories and fetches their workflow files.
type Resolver struct {
	client   *github.Client
	log      hclog.Logger
	pageSize int
	workers  int
}

// Options tune traversal behavior. Zero values fall back to defaults.
type Options struct {
	PageSize int
	Workers  int
}

func New(client *github.Client, log hclog.Logger, opts Options) *Resolver {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Resolver{
		client:   client,
		log:      log,
		pageSize: opts.PageSize,
		workers:  opts.Workers,
	}
}

// Resolve starts the traversal and returns a result stream plus an error
// channel. The result channel closes when traversal finishes; the error
// channel then carries at most one fatal error (stalled cursor, missing
// owner, cancellation). Per-repository failures never appear on the error
// channel, they become skip results.
func (r *Resolver) Resolve(ctx context.Context, entity EntityType, identifier string) (<-chan RepositoryResult, <-chan error) {
	results := make(chan RepositoryResult)
	fatal := make(chan error, 1)

	go func() {
		defer close(results)
		defer close(fatal)

		var err error
		switch entity {
		case EntityRepository:
			err = r.resolveRepository(ctx, identifier, results)
		case EntityOrganization, EntityUser:
			err = r.resolveOwner(ctx, entity, identifier, results)
		default:
			err = errors.NewConfigError(fmt.Sprintf("unknown entity type %q", entity), nil)
		}
		if err != nil {
			fatal <- err
		}
	}()

	return results, fatal
}

func (r *Resolver) resolveRepository(ctx context.Context, identifier string, results chan<- RepositoryResult) error {
	owner, name, ok := strings.Cut(identifier, "/")
	if !ok || owner == "" || name == "" {
		return errors.NewConfigError(
			fmt.Sprintf("repository identifier %q must be owner/name", identifier), nil)
	}
	result := r.scanRepository(ctx, github.Repository{
		Name:  name,
		Owner: github.RepositoryOwner{Login: owner},
	})
	// A single explicitly named repository that cannot be read is a run
	// failure, not a skip.
	if result.Skipped() {
		return errors.NewRepositoryAccessError(result.SkipReason, nil, identifier)
	}
	select {
	case results <- result:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (r *Resolver) resolveOwner(ctx context.Context, entity EntityType, login string, results chan<- RepositoryResult) error {
	jobs := make(chan github.Repository)
	var wg sync.WaitGroup

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for repo := range jobs {
				select {
				case results <- r.scanRepository(ctx, repo):
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	err := r.paginate(ctx, entity, login, jobs)
	close(jobs)
	wg.Wait()
	return err
}

// paginate walks the owner's repository pages and feeds the worker pool.
// A cursor that fails to advance across consecutive pages means the
// traversal protocol is broken and aborts the run.
func (r *Resolver) paginate(ctx context.Context, entity EntityType, login string, jobs chan<- github.Repository) error {
	var (
		cursor     string
		stallCount int
		seen       = make(map[string]bool)
	)

	for {
		var (
			page *github.RepositoryPage
			err  error
		)
		if entity == EntityOrganization {
			page, err = r.client.ListOrganizationRepositories(ctx, login, cursor, r.pageSize)
		} else {
			page, err = r.client.ListUserRepositories(ctx, login, cursor, r.pageSize)
		}
		if err != nil {
			return err
		}

		r.log.Debug("repository page fetched",
			"login", login, "count", len(page.Repositories), "hasNextPage", page.HasNextPage)

		for _, repo := range page.Repositories {
			if seen[repo.FullName()] {
				continue
			}
			seen[repo.FullName()] = true
			select {
			case jobs <- repo:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if !page.HasNextPage {
			return nil
		}
		if page.EndCursor == cursor {
			stallCount++
			if stallCount >= cursorStallLimit {
				return errors.NewCursorStalledError(cursor)
			}
		} else {
			stallCount = 0
			cursor = page.EndCursor
		}
	}
}

// scanRepository fetches the workflow files of one repository. Failures are
// scoped to the repository and reported as a skip.
func (r *Resolver) scanRepository(ctx context.Context, repo github.Repository) RepositoryResult {
	full := repo.FullName()

	if repo.IsEmpty {
		return RepositoryResult{Repository: full, SkipReason: "repository is empty"}
	}

	files, err := r.client.FetchWorkflows(ctx, repo.Owner.Login, repo.Name)
	if err != nil {
		if errors.IsKind(err, errors.KindRepositoryAccess) {
			r.log.Warn("repository skipped", "repository", full, "reason", err.Error())
			return RepositoryResult{Repository: full, SkipReason: err.Error()}
		}
		r.log.Warn("workflow fetch failed", "repository", full, "error", err)
		return RepositoryResult{Repository: full, SkipReason: "workflow fetch failed: " + err.Error()}
	}

	if repo.IsArchived && len(files) == 0 {
		return RepositoryResult{Repository: full, SkipReason: "archived repository with no workflows"}
	}

	documents := make([]WorkflowDocument, 0, len(files))
	for _, file := range files {
		documents = append(documents, WorkflowDocument{
			Owner:   repo.Owner.Login,
			Name:    repo.Name,
			Path:    ".github/workflows/" + file.Name,
			Content: file.Content,
		})
	}
	return RepositoryResult{Repository: full, Documents: documents}
}
