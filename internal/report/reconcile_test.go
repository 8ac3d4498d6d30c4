package report

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/forkpr/internal/githubclt"
)

type fakePager struct {
	repos map[string][]string
	calls int
}

func (p *fakePager) ListRepositories(_ context.Context, owner, cursor string) (*githubclt.RepositoryPage, error) {
	p.calls++

	if cursor != "" {
		return nil, errors.New("only one page exists")
	}

	names, exists := p.repos[owner]
	if !exists {
		return nil, errors.New("unknown owner")
	}

	var page githubclt.RepositoryPage
	for _, name := range names {
		page.Repositories = append(page.Repositories, &githubclt.Repository{NameWithOwner: name})
	}

	return &page, nil
}

func TestReconcile(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	pager := fakePager{repos: map[string][]string{
		"forks": {"forks/a", "forks/B", "forks/renamed-c", "forks/d"},
		"other": {"other/x"},
	}}

	r := New()
	r.Touch("forks", "a")
	r.Touch("forks", "b")
	r.Touch("forks", "c")
	r.Touch("other", "x")

	rc, err := Reconcile(context.Background(), &pager, r)
	require.NoError(t, err)

	assert.Equal(t, []string{"forks/c"}, rc.NotListed)
	assert.Equal(t, []string{"forks/d", "forks/renamed-c"}, rc.NotReached)
	assert.Equal(t, 2, pager.calls)

	var sb strings.Builder
	require.NoError(t, rc.Print(&sb))
	assert.Contains(t, sb.String(), "1. forks/c")
	assert.Contains(t, sb.String(), "2. forks/renamed-c")
}

func TestReconcileListingFails(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New()
	r.Touch("unknown", "a")

	_, err := Reconcile(context.Background(), &fakePager{}, r)
	assert.Error(t, err)
}

func TestReconcileWithoutTouchedRepositories(t *testing.T) {
	pager := fakePager{}

	rc, err := Reconcile(context.Background(), &pager, New())
	require.NoError(t, err)
	assert.Empty(t, rc.NotListed)
	assert.Empty(t, rc.NotReached)
	assert.Zero(t, pager.calls)
}
