package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/simplesurance/forkpr/internal/batch"
	"github.com/simplesurance/forkpr/internal/bulkaction"
	"github.com/simplesurance/forkpr/internal/checkpoint"
	"github.com/simplesurance/forkpr/internal/githubclt"
	"github.com/simplesurance/forkpr/internal/logfields"
	"github.com/simplesurance/forkpr/internal/metrics"
	"github.com/simplesurance/forkpr/internal/report"
	"github.com/simplesurance/forkpr/internal/worklist"
)

// githubAPI are the GitHub operations of a run.
type githubAPI interface {
	batch.GithubClient
	githubclt.RepositoryPager
	bulkaction.Mutator
	RateLimits(ctx context.Context) (*githubclt.RateLimitStatus, error)
}

type bulkActionArg struct {
	action bulkaction.Action
	owner  string
}

type runner struct {
	fs      afero.Fs
	clt     githubAPI
	metrics *metrics.Collector
	out     io.Writer

	checkpointFile  string
	label           string
	maxItemsPerFile int
	dryRun          bool
	synced          bool

	// onCheckpointLoaded is called with the checkpoint store before the
	// first item is processed.
	onCheckpointLoaded func(*checkpoint.Store)

	logger *zap.Logger
}

// run executes the bulk actions and afterwards processes the worklist files.
// The worklist and the checkpoint are loaded before GitHub is contacted, a
// configuration error aborts the run without any remote call.
func (r *runner) run(ctx context.Context, files []string, actions []*bulkActionArg) error {
	var wl *worklist.Worklist
	var store *checkpoint.Store

	if len(files) > 0 {
		var err error

		wl, err = worklist.Load(r.fs, files)
		if err != nil {
			return err
		}

		store, err = r.loadCheckpoint()
		if err != nil {
			return err
		}

		r.logger.Info(
			"worklist loaded",
			logfields.Event("worklist_loaded"),
			zap.Strings("files", files),
			zap.Int("items", wl.Len()),
			zap.Strings("checkpoint_files", store.Files()),
		)
	}

	r.logRateLimits(ctx, "github rate limits before run")
	defer r.logRateLimits(ctx, "github rate limits after run")

	if len(actions) > 0 {
		if err := r.runBulkActions(ctx, actions); err != nil {
			return err
		}
	}

	if wl != nil {
		return r.runWorklist(ctx, wl, store)
	}

	return nil
}

func (r *runner) loadCheckpoint() (*checkpoint.Store, error) {
	checkpointFs := r.fs
	if r.dryRun {
		// progress of a dry-run is only kept in memory
		checkpointFs = afero.NewCopyOnWriteFs(afero.NewReadOnlyFs(r.fs), afero.NewMemMapFs())
	}

	store := checkpoint.New(checkpointFs, r.checkpointFile, checkpoint.DefMaxEntries)

	mode := checkpoint.ModeResume
	if r.synced {
		mode = checkpoint.ModeSynced
	}

	if err := store.Load(mode); err != nil {
		return nil, fmt.Errorf("loading checkpoint failed: %w", err)
	}

	if r.onCheckpointLoaded != nil {
		r.onCheckpointLoaded(store)
	}

	return store, nil
}

func (r *runner) logRateLimits(ctx context.Context, msg string) {
	status, err := r.clt.RateLimits(ctx)
	if err != nil {
		r.logger.Warn(
			"retrieving rate limits failed",
			logfields.Event("github_rate_limit_retrieval_failed"),
			zap.Error(err),
		)
		return
	}

	r.logger.Info(msg, append(status.LogFields(), logfields.Event("github_rate_limits"))...)
}

func (r *runner) runBulkActions(ctx context.Context, actions []*bulkActionArg) error {
	opts := []func(*bulkaction.Batcher){bulkaction.WithMetrics(r.metrics)}
	if r.dryRun {
		opts = append(opts, bulkaction.WithDryRun())
	}

	batcher := bulkaction.NewBatcher(r.clt, r.clt, opts...)

	for _, a := range actions {
		if _, err := batcher.Run(ctx, a.action, a.owner); err != nil {
			return fmt.Errorf("%s bulk action for %s failed: %w", a.action, a.owner, err)
		}
	}

	return nil
}

func (r *runner) runWorklist(ctx context.Context, wl *worklist.Worklist, store *checkpoint.Store) error {
	var ghClt batch.GithubClient = r.clt
	if r.dryRun {
		ghClt = batch.NewDryGithubClient(r.clt, r.logger)
	}

	executor := batch.NewExecutor(
		ghClt,
		store,
		batch.WithMaxItemsPerFile(r.maxItemsPerFile),
		batch.WithPullRequestLabel(r.label),
		batch.WithMetrics(r.metrics),
	)

	rep, runErr := executor.Run(ctx, wl)
	if err := rep.Print(r.out); err != nil {
		r.logger.Warn("printing report failed", logfields.Event("report_printing_failed"), zap.Error(err))
	}

	r.logger.Debug(
		"worklist processed",
		logfields.Event("worklist_processed"),
		zap.Int("report_entries", rep.Len()),
		zap.Strings("touched_repositories", rep.Touched()),
	)

	if runErr != nil {
		return runErr
	}

	rec, err := report.Reconcile(ctx, r.clt, rep)
	if err != nil {
		r.logger.Warn(
			"reconciling touched repositories failed",
			logfields.Event("reconciliation_failed"),
			zap.Error(err),
		)

		return nil
	}

	if err := rec.Print(r.out); err != nil {
		r.logger.Warn("printing reconciliation failed", logfields.Event("report_printing_failed"), zap.Error(err))
	}

	return nil
}
