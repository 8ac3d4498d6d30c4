package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/forkpr/internal/bulkaction"
	"github.com/simplesurance/forkpr/internal/checkpoint"
	"github.com/simplesurance/forkpr/internal/githubclt"
	"github.com/simplesurance/forkpr/internal/worklist"
)

const validWorklist = `[widgets]
	url = https://github.com/forks/widgets
	upstream = https://github.com/acme/widgets.git
	branches = master->main,
`

const checkpointFile = "/var/lib/forkpr/checkpoint.json"

// fakeGithub records the names of all called operations.
type fakeGithub struct {
	calls []string
	repos []*githubclt.Repository
}

func (f *fakeGithub) ResolveRepository(_ context.Context, owner, repo string) (string, error) {
	f.calls = append(f.calls, "ResolveRepository")
	return owner + "/" + repo, nil
}

func (f *fakeGithub) CreatePullRequest(context.Context, string, string, *githubclt.NewPullRequest) (*githubclt.PullRequest, error) {
	f.calls = append(f.calls, "CreatePullRequest")
	return &githubclt.PullRequest{Number: 1}, nil
}

func (f *fakeGithub) AddLabel(context.Context, string, string, int, string) error {
	f.calls = append(f.calls, "AddLabel")
	return nil
}

func (f *fakeGithub) ListRepositories(context.Context, string, string) (*githubclt.RepositoryPage, error) {
	f.calls = append(f.calls, "ListRepositories")
	return &githubclt.RepositoryPage{Repositories: f.repos}, nil
}

func (f *fakeGithub) Mutate(context.Context, string) error {
	f.calls = append(f.calls, "Mutate")
	return nil
}

func (f *fakeGithub) RateLimits(context.Context) (*githubclt.RateLimitStatus, error) {
	f.calls = append(f.calls, "RateLimits")
	return &githubclt.RateLimitStatus{}, nil
}

func newTestRunner(t *testing.T, fs afero.Fs, clt githubAPI) (*runner, *bytes.Buffer) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	var out bytes.Buffer

	return &runner{
		fs:             fs,
		clt:            clt,
		out:            &out,
		checkpointFile: checkpointFile,
		label:          "backstroke",
		logger:         zap.L(),
	}, &out
}

func starAction(owner string) []*bulkActionArg {
	return []*bulkActionArg{{action: bulkaction.ActionStar, owner: owner}}
}

func TestRunWithInvalidWorklistDoesNoRemoteCalls(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/valid", []byte(validWorklist), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/broken", []byte("[unterminated\nurl = x\n"), 0o644))

	clt := fakeGithub{repos: []*githubclt.Repository{{ID: "R_1", NameWithOwner: "alice/widgets"}}}
	r, _ := newTestRunner(t, fs, &clt)

	err := r.run(context.Background(), []string{"/valid", "/broken"}, starAction("alice"))
	require.Error(t, err)

	var parseErr *worklist.ConfigParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "/broken", parseErr.File)

	assert.Empty(t, clt.calls)
}

func TestRunWithMissingWorklistDoesNoRemoteCalls(t *testing.T) {
	clt := fakeGithub{}
	r, _ := newTestRunner(t, afero.NewMemMapFs(), &clt)

	err := r.run(context.Background(), []string{"/missing"}, starAction("alice"))

	var parseErr *worklist.ConfigParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Empty(t, clt.calls)
}

func TestRunExecutesBulkActionsBeforeWorklist(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/wl", []byte(validWorklist), 0o644))

	clt := fakeGithub{repos: []*githubclt.Repository{{ID: "R_1", NameWithOwner: "forks/widgets"}}}
	r, out := newTestRunner(t, fs, &clt)

	var loadedStore *checkpoint.Store
	r.onCheckpointLoaded = func(s *checkpoint.Store) { loadedStore = s }

	err := r.run(context.Background(), []string{"/wl"}, starAction("forks"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"RateLimits",
		"ListRepositories",
		"Mutate",
		"ResolveRepository",
		"CreatePullRequest",
		"AddLabel",
		"ListRepositories",
		"RateLimits",
	}, clt.calls)

	require.NotNil(t, loadedStore)
	assert.Equal(t, 1, loadedStore.Get("/wl"))
	assert.Contains(t, out.String(), "Successfully Created\n        1. forks/widgets")

	exists, err := afero.Exists(fs, checkpointFile)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDryRunDoesNotAdvanceCheckpointFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/wl", []byte(validWorklist), 0o644))

	clt := fakeGithub{repos: []*githubclt.Repository{{ID: "R_1", NameWithOwner: "forks/widgets"}}}
	r, _ := newTestRunner(t, fs, &clt)
	r.dryRun = true

	err := r.run(context.Background(), []string{"/wl"}, starAction("forks"))
	require.NoError(t, err)

	assert.NotContains(t, clt.calls, "Mutate")
	assert.NotContains(t, clt.calls, "CreatePullRequest")
	assert.NotContains(t, clt.calls, "AddLabel")

	exists, err := afero.Exists(fs, checkpointFile)
	require.NoError(t, err)
	assert.False(t, exists)
}
