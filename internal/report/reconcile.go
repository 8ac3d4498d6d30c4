package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/forkpr/internal/githubclt"
	"github.com/simplesurance/forkpr/internal/logfields"
)

// Reconciliation is the difference between the repositories that were touched
// during a run and the repositories their owners have.
type Reconciliation struct {
	// NotListed contains touched repositories that do not exist under
	// the configured name anymore, they were renamed or removed.
	NotListed []string
	// NotReached contains repositories of touched owners that no work item
	// refers to.
	NotReached []string
}

// Reconcile lists all repositories of the owners of the touched repositories
// and compares them with the touched ones.
func Reconcile(ctx context.Context, pager githubclt.RepositoryPager, r *Report) (*Reconciliation, error) {
	logger := zap.L().Named("reconciliation")

	enumerated := map[string]string{}

	for _, owner := range r.TouchedOwners() {
		it := githubclt.NewRepositoryIterator(ctx, pager, owner)

		var cnt int
		for {
			repo, err := it.Next()
			if err != nil {
				return nil, fmt.Errorf("listing repositories of %s failed: %w", owner, err)
			}

			if repo == nil {
				break
			}

			cnt++
			enumerated[strings.ToLower(repo.NameWithOwner)] = repo.NameWithOwner
		}

		logger.Debug(
			"listed repositories",
			logfields.Event("reconciliation_owner_listed"),
			logfields.RepositoryOwner(owner),
			zap.Int("repositories", cnt),
		)
	}

	var result Reconciliation

	for key, name := range r.touched {
		if _, exists := enumerated[key]; !exists {
			result.NotListed = append(result.NotListed, name)
		}
	}

	for key, name := range enumerated {
		if _, exists := r.touched[key]; !exists {
			result.NotReached = append(result.NotReached, name)
		}
	}

	sort.Strings(result.NotListed)
	sort.Strings(result.NotReached)

	return &result, nil
}

// Print writes the reconciliation in human-readable form to w.
func (rc *Reconciliation) Print(w io.Writer) error {
	var sb strings.Builder

	sb.WriteString("\nRepositories reconciliation:\n")

	sb.WriteString("\n   Touched but not listed by their owner (renamed or removed)\n")
	writeList(&sb, rc.NotListed)

	sb.WriteString("\n   Listed by a touched owner but never reached\n")
	writeList(&sb, rc.NotReached)

	_, err := io.WriteString(w, sb.String())
	return err
}
