package worklist

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/forkpr/internal/logfields"
)

// Configuration keys of a worklist section.
const (
	KeyDownstreamURL = "url"
	KeyUpstreamURL   = "upstream"
	KeyBranches      = "branches"
)

var (
	githubURLRe  = regexp.MustCompile(`github\.com/([^/\s]+)/([^/\s]+?)(?:\.git)?/*$`)
	branchSpecRe = regexp.MustCompile(`(.+)->(.+),`)
)

// ParseGithubURL returns the owner and repository name of a GitHub repository
// URL in the form github.com/<owner>/<repo>[.git].
// If url does not match, empty strings are returned.
func ParseGithubURL(url string) (owner, repo string) {
	matches := githubURLRe.FindStringSubmatch(strings.TrimSpace(url))
	if len(matches) != 3 {
		return "", ""
	}

	return matches[1], matches[2]
}

// ParseBranchSpec parses a branch specification in the form
// "<localBranch>-><upstreamBranch>,".
// If spec does not match, empty strings are returned.
func ParseBranchSpec(spec string) (localBranch, upstreamBranch string) {
	matches := branchSpecRe.FindStringSubmatch(spec)
	if len(matches) != 3 {
		return "", ""
	}

	return strings.TrimSpace(matches[1]), strings.TrimSpace(matches[2])
}

// WorkItem is a section of a worklist file, it describes a pull request that
// merges changes from an upstream repository into a downstream fork.
type WorkItem struct {
	Section string
	File    string
	// Index is the 1-based position of the item in File.
	Index int

	DownstreamURL string
	UpstreamURL   string
	BranchSpec    string

	DownstreamOwner string
	DownstreamRepo  string
	UpstreamOwner   string
	UpstreamRepo    string
	LocalBranch     string
	UpstreamBranch  string
}

func newWorkItem(file string, index int, section, downstreamURL, upstreamURL, branchSpec string) *WorkItem {
	item := WorkItem{
		Section:       section,
		File:          file,
		Index:         index,
		DownstreamURL: downstreamURL,
		UpstreamURL:   upstreamURL,
		BranchSpec:    branchSpec,
	}

	item.DownstreamOwner, item.DownstreamRepo = ParseGithubURL(downstreamURL)
	item.UpstreamOwner, item.UpstreamRepo = ParseGithubURL(upstreamURL)
	item.LocalBranch, item.UpstreamBranch = ParseBranchSpec(branchSpec)

	return &item
}

// HasUpstream returns true if the upstream owner and repository are known.
func (w *WorkItem) HasUpstream() bool {
	return w.UpstreamOwner != "" && w.UpstreamRepo != ""
}

// HasDownstream returns true if the downstream owner and repository are known.
func (w *WorkItem) HasDownstream() bool {
	return w.DownstreamOwner != "" && w.DownstreamRepo != ""
}

// HasBranches returns true if the local and upstream branch are known.
func (w *WorkItem) HasBranches() bool {
	return w.LocalBranch != "" && w.UpstreamBranch != ""
}

// Downstream returns "<owner>/<repo>" of the downstream repository.
func (w *WorkItem) Downstream() string {
	return w.DownstreamOwner + "/" + w.DownstreamRepo
}

// Upstream returns "<owner>/<repo>@<branch>" of the upstream repository.
func (w *WorkItem) Upstream() string {
	return fmt.Sprintf("%s/%s@%s", w.UpstreamOwner, w.UpstreamRepo, w.UpstreamBranch)
}

// ID identifies the item in reports.
// It is the downstream repository if it is known, otherwise the section name.
func (w *WorkItem) ID() string {
	if w.HasDownstream() {
		return w.Downstream()
	}

	return w.Section
}

func (w *WorkItem) String() string {
	return fmt.Sprintf("%s (%s:%d)", w.Section, w.File, w.Index)
}

func (w *WorkItem) LogFields() []zap.Field {
	return []zap.Field{
		logfields.WorklistFile(w.File),
		logfields.Section(w.Section),
		logfields.ItemIndex(w.Index),
		logfields.RepositoryOwner(w.DownstreamOwner),
		logfields.Repository(w.DownstreamRepo),
	}
}
