package githubclt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v45/github"
	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/forkpr/internal/forkprerr"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	restClt := github.NewClient(srv.Client())
	baseURL, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	restClt.BaseURL = baseURL

	return &Client{
		httpClient: srv.Client(),
		restClt:    restClt,
		graphQLClt: githubv4.NewEnterpriseClient(srv.URL+"/graphql", srv.Client()),
		graphQLURL: srv.URL + "/graphql",
		logger:     zap.L(),
	}
}

func TestResolveRepositoryReturnsCurrentName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/forks", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"login": "forks"}`)
	})
	mux.HandleFunc("/repos/forks/old-name", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"full_name": "forks/new-name"}`)
	})

	clt := newTestClient(t, mux)

	name, err := clt.ResolveRepository(context.Background(), "forks", "old-name")
	require.NoError(t, err)
	assert.Equal(t, "forks/new-name", name)
}

func TestResolveRepositoryUnknownUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/nobody", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message": "Not Found"}`)
	})

	clt := newTestClient(t, mux)

	_, err := clt.ResolveRepository(context.Background(), "nobody", "repo")
	require.Error(t, err)

	var respErr *github.ErrorResponse
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusNotFound, respErr.Response.StatusCode)
}

func TestResolveRepositoryWithEmptyOwner(t *testing.T) {
	clt := newTestClient(t, http.NotFoundHandler())

	_, err := clt.ResolveRepository(context.Background(), "", "repo")
	require.Error(t, err)
}

func TestCreatePullRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/forks/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var req github.NewPullRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		assert.Equal(t, "master", req.GetBase())
		assert.Equal(t, "acme:main", req.GetHead())
		assert.Equal(t, "Update from acme/widgets@main", req.GetTitle())
		assert.False(t, req.GetMaintainerCanModify())

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"number": 7, "html_url": "https://github.com/forks/widgets/pull/7"}`)
	})

	clt := newTestClient(t, mux)

	pr, err := clt.CreatePullRequest(context.Background(), "forks", "widgets", &NewPullRequest{
		Title: "Update from acme/widgets@main",
		Body:  "body",
		Base:  "master",
		Head:  "acme:main",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, "https://github.com/forks/widgets/pull/7", pr.URL)
}

func TestCreatePullRequestErrorCanBeClassified(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/forks/widgets/pulls", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"message": "Validation Failed", "errors": [{"resource": "PullRequest", "code": "custom", "message": "No commits between master and acme:main"}]}`)
	})

	clt := newTestClient(t, mux)

	_, err := clt.CreatePullRequest(context.Background(), "forks", "widgets", &NewPullRequest{Base: "master", Head: "acme:main"})
	require.Error(t, err)

	assert.Equal(t, forkprerr.KindNoCommitsBetween, forkprerr.Classify("forks/widgets", err).Kind)
}

func TestAddLabel(t *testing.T) {
	var called bool

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/forks/widgets/issues/7/labels", func(w http.ResponseWriter, r *http.Request) {
		called = true

		var labels []string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&labels))
		assert.Equal(t, []string{"backstroke"}, labels)

		_, _ = io.WriteString(w, `[{"name": "backstroke"}]`)
	})

	clt := newTestClient(t, mux)

	require.NoError(t, clt.AddLabel(context.Background(), "forks", "widgets", 7, "backstroke"))
	assert.True(t, called)

	assert.Error(t, clt.AddLabel(context.Background(), "forks", "widgets", 7, ""))
}

func TestRateLimits(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"resources": {
			"core": {"limit": 5000, "remaining": 4990, "reset": 1700000000},
			"graphql": {"limit": 5000, "remaining": 4000, "reset": 1700000000}
		}}`)
	})

	clt := newTestClient(t, mux)

	status, err := clt.RateLimits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5000, status.Core.Limit)
	assert.Equal(t, 4990, status.Core.Remaining)
	assert.Equal(t, 4000, status.GraphQL.Remaining)
	assert.Equal(t, int64(1700000000), status.Core.Reset.Unix())
}
