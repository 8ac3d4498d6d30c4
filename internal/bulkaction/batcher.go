// Package bulkaction applies an action to all repositories of a GitHub
// account.
//
// The repositories are listed page by page. For every page one GraphQL
// document is sent that contains an aliased mutation per repository, all
// mutations of a page are executed in a single request.
package bulkaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/forkpr/internal/githubclt"
	"github.com/simplesurance/forkpr/internal/logfields"
	"github.com/simplesurance/forkpr/internal/metrics"
)

const loggerName = "bulk_action"

// DefPageInterval is the time that is waited between requesting 2 pages.
const DefPageInterval = 3 * time.Second

// Mutator sends GraphQL mutation documents.
type Mutator interface {
	Mutate(ctx context.Context, document string) error
}

// Result summarizes a run of the Batcher.
type Result struct {
	Pages        int
	Repositories int
	Archived     int
	Mutations    int
}

// Batcher runs bulk actions.
type Batcher struct {
	lister  githubclt.RepositoryPager
	mutator Mutator

	dryRun       bool
	metrics      *metrics.Collector
	pageInterval time.Duration
	sleepFn      func(context.Context, time.Duration) error

	logger *zap.Logger
}

// WithDryRun enables the dry-run mode. Repositories are listed but the
// mutation documents are only logged.
func WithDryRun() func(*Batcher) {
	return func(b *Batcher) {
		b.dryRun = true
	}
}

func WithMetrics(c *metrics.Collector) func(*Batcher) {
	return func(b *Batcher) {
		b.metrics = c
	}
}

// WithPageInterval sets the time that is waited between pages.
func WithPageInterval(d time.Duration) func(*Batcher) {
	return func(b *Batcher) {
		b.pageInterval = d
	}
}

func NewBatcher(lister githubclt.RepositoryPager, mutator Mutator, opts ...func(*Batcher)) *Batcher {
	b := Batcher{
		lister:       lister,
		mutator:      mutator,
		pageInterval: DefPageInterval,
		sleepFn:      sleep,
		logger:       zap.L().Named(loggerName),
	}

	for _, opt := range opts {
		opt(&b)
	}

	return &b
}

// Run applies action to all non-archived repositories owned by owner.
//
// Run stops with an error when listing a page or sending a mutation document
// fails. Mutations of pages that were sent before stay applied.
func (b *Batcher) Run(ctx context.Context, action Action, owner string) (*Result, error) {
	var result Result
	var aliasCnt int
	var cursor string

	logger := b.logger.With(
		logfields.RepositoryOwner(owner),
		zap.Stringer("action", action),
		zap.Bool("dry_run", b.dryRun),
	)

	bo := backoff.NewConstantBackOff(b.pageInterval)

	logger.Info("bulk action started", logfields.Event("bulk_action_started"))

	for {
		page, err := b.lister.ListRepositories(ctx, owner, cursor)
		if err != nil {
			return &result, fmt.Errorf("listing repositories of %s failed: %w", owner, err)
		}

		result.Pages++
		result.Repositories += len(page.Repositories)

		doc, mutations := buildDocument(action, page.Repositories, &aliasCnt)
		result.Archived += len(page.Repositories) - mutations

		if mutations > 0 {
			if err := b.send(ctx, logger, doc); err != nil {
				return &result, fmt.Errorf("sending %s mutations for page %d failed: %w", action, result.Pages, err)
			}

			result.Mutations += mutations
		}

		b.metrics.BulkPageProcessed(action.String(), mutations)

		logger.Info(
			"repository page processed",
			logfields.Event("bulk_action_page_processed"),
			zap.Int("page", result.Pages),
			zap.Int("repositories", len(page.Repositories)),
			zap.Int("mutations", mutations),
			zap.Bool("has_next_page", page.HasNextPage),
		)

		if !page.HasNextPage {
			break
		}

		cursor = page.EndCursor

		if err := b.sleepFn(ctx, bo.NextBackOff()); err != nil {
			return &result, fmt.Errorf("waiting for next page failed: %w", err)
		}
	}

	logger.Info(
		"bulk action finished",
		logfields.Event("bulk_action_finished"),
		zap.Int("pages", result.Pages),
		zap.Int("repositories", result.Repositories),
		zap.Int("archived", result.Archived),
		zap.Int("mutations", result.Mutations),
	)

	return &result, nil
}

func (b *Batcher) send(ctx context.Context, logger *zap.Logger, doc string) error {
	if b.dryRun {
		logger.Info(
			"simulated sending of mutations, no changes done on github",
			logfields.Event("bulk_action_mutations_simulated"),
			zap.String("document", doc),
		)

		return nil
	}

	logger.Debug(
		"sending mutations",
		logfields.Event("bulk_action_mutations_sending"),
		zap.String("document", doc),
	)

	return b.mutator.Mutate(ctx, doc)
}

// buildDocument returns a mutation document containing action for every
// non-archived repository and the number of mutations in it.
// aliasCnt is the number of aliases that were assigned before, it is
// increased for every added mutation.
func buildDocument(action Action, repos []*githubclt.Repository, aliasCnt *int) (string, int) {
	var sb strings.Builder
	var cnt int

	sb.WriteString("mutation {\n")

	for _, repo := range repos {
		if repo.IsArchived {
			continue
		}

		*aliasCnt++
		cnt++

		sb.WriteString("  ")
		sb.WriteString(action.mutation(fmt.Sprintf("update%05d", *aliasCnt), repo.ID))
		sb.WriteString("\n")
	}

	sb.WriteString("}\n")

	return sb.String(), cnt
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
