// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v45/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/forkpr/internal/logfields"
)

const DefaultHTTPClientTimeout = time.Minute

// DefaultGraphQLURL is the GitHub GraphQL API endpoint.
const DefaultGraphQLURL = "https://api.github.com/graphql"

const loggerName = "github_client"

// New returns a new github api client.
func New(oauthAPItoken string) *Client {
	httpClient := newHTTPClient(oauthAPItoken)
	return &Client{
		httpClient: httpClient,
		restClt:    github.NewClient(httpClient),
		graphQLClt: githubv4.NewClient(httpClient),
		graphQLURL: DefaultGraphQLURL,
		logger:     zap.L().Named(loggerName),
	}
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is an github API client.
// Operations are not retried, errors are returned as they happen.
type Client struct {
	httpClient *http.Client
	restClt    *github.Client
	graphQLClt *githubv4.Client
	graphQLURL string
	logger     *zap.Logger
}

// PullRequest is a pull request that was created.
type PullRequest struct {
	Number int
	URL    string
}

// NewPullRequest describes a pull request that is created.
type NewPullRequest struct {
	Title string
	Body  string
	// Base is the branch the changes are merged into.
	Base string
	// Head is the branch containing the changes, to refer to a branch of
	// another repository it has the format <owner>:<branch>.
	Head string
}

// ResolveRepository looks up the owner and the repository and returns the
// full name of the repository as it is known by GitHub.
// If the repository was renamed, the returned name differs from the passed
// one.
func (clt *Client) ResolveRepository(ctx context.Context, owner, repo string) (string, error) {
	if owner == "" || repo == "" {
		return "", fmt.Errorf("invalid repository %q/%q, owner and name must not be empty", owner, repo)
	}

	_, _, err := clt.restClt.Users.Get(ctx, owner)
	if err != nil {
		return "", fmt.Errorf("looking up user %q failed: %w", owner, clt.logRateLimitErrors(err))
	}

	ghRepo, _, err := clt.restClt.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("looking up repository %s/%s failed: %w", owner, repo, clt.logRateLimitErrors(err))
	}

	if ghRepo.GetFullName() == "" {
		return "", errors.New("github returned a repository with an empty full_name field")
	}

	return ghRepo.GetFullName(), nil
}

// CreatePullRequest creates a pull request in the repository.
func (clt *Client) CreatePullRequest(ctx context.Context, owner, repo string, pr *NewPullRequest) (*PullRequest, error) {
	maintainerCanModify := false

	ghPR, _, err := clt.restClt.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title:               &pr.Title,
		Body:                &pr.Body,
		Base:                &pr.Base,
		Head:                &pr.Head,
		MaintainerCanModify: &maintainerCanModify,
	})
	if err != nil {
		return nil, clt.logRateLimitErrors(err)
	}

	clt.logger.Debug(
		"pull request created",
		logfields.Event("github_pull_request_created"),
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(ghPR.GetNumber()),
	)

	return &PullRequest{
		Number: ghPR.GetNumber(),
		URL:    ghPR.GetHTMLURL(),
	}, nil
}

// AddLabel adds a label to Pull-Request or Issue.
func (clt *Client) AddLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error {
	if label == "" {
		// by default github removes all labels when none is provided,
		// we do not need this functionality, as safe guard fail if
		// because of a bug an empty label value is passed:
		return errors.New("provided label is empty")
	}
	_, _, err := clt.restClt.Issues.AddLabelsToIssue(ctx, owner, repo, pullRequestOrIssueNumber, []string{label})
	return clt.logRateLimitErrors(err)
}

func (clt *Client) logRateLimitErrors(err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", rateErr.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", rateErr.Rate.Reset.Time),
		)
	}

	return err
}
