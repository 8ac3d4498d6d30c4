package batch

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/forkpr/internal/githubclt"
	"github.com/simplesurance/forkpr/internal/logfields"
)

// DryGithubClient is a github-client that does not do any changes on github.
// All operations that could cause a change are simulated and always succeed.
// All all other operations are forwarded to a wrapped GithubClient.
type DryGithubClient struct {
	clt    GithubClient
	logger *zap.Logger
}

func NewDryGithubClient(clt GithubClient, logger *zap.Logger) *DryGithubClient {
	return &DryGithubClient{
		clt:    clt,
		logger: logger.Named("dry_github_client"),
	}
}

func (c *DryGithubClient) ResolveRepository(ctx context.Context, owner, repo string) (string, error) {
	return c.clt.ResolveRepository(ctx, owner, repo)
}

func (c *DryGithubClient) CreatePullRequest(_ context.Context, owner, repo string, pr *githubclt.NewPullRequest) (*githubclt.PullRequest, error) {
	c.logger.Info(
		"simulated creating of pull request, no pull request created on github",
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.BaseBranch(pr.Base),
		logfields.HeadBranch(pr.Head),
		zap.String("title", pr.Title),
	)

	return &githubclt.PullRequest{}, nil
}

func (c *DryGithubClient) AddLabel(context.Context, string, string, int, string) error {
	c.logger.Info("simulated adding label, no label added on github")
	return nil
}
