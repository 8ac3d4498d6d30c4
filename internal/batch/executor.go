package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/forkpr/internal/forkprerr"
	"github.com/simplesurance/forkpr/internal/githubclt"
	"github.com/simplesurance/forkpr/internal/logfields"
	"github.com/simplesurance/forkpr/internal/metrics"
	"github.com/simplesurance/forkpr/internal/report"
	"github.com/simplesurance/forkpr/internal/worklist"
)

const loggerName = "batch_executor"

// DefPullRequestLabel is the label that is added to created pull requests.
const DefPullRequestLabel = "backstroke"

// ErrInterrupted is returned when a run was cancelled before all work items
// were processed.
var ErrInterrupted = errors.New("run interrupted")

//go:generate mockgen -destination=mocks/githubclient.go -package=mocks . GithubClient

// GithubClient is the subset of the GitHub API operations that the executor
// uses.
type GithubClient interface {
	ResolveRepository(ctx context.Context, owner, repo string) (string, error)
	CreatePullRequest(ctx context.Context, owner, repo string, pr *githubclt.NewPullRequest) (*githubclt.PullRequest, error)
	AddLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error
}

// CheckpointStore persists the number of completed items per worklist file.
type CheckpointStore interface {
	Get(file string) int
	Record(file string, index int)
	Flush() error
}

var pullRequestBodyTmpl = template.Must(template.New("body").Parse(
	"The upstream repository `{{.Upstream}}` has some new changes that aren't in this fork.\n" +
		"So, here they are, ready to be merged!\n" +
		"\n" +
		"This Pull Request was created programmatically by forkpr.\n",
))

// Executor creates pull requests for the items of a worklist.
// Progress is persisted per worklist file after every item, a following run
// skips the items that were completed.
type Executor struct {
	clt         GithubClient
	checkpoints CheckpointStore

	maxItemsPerFile int
	label           string
	metrics         *metrics.Collector

	logger *zap.Logger
}

// WithMaxItemsPerFile limits the number of items that are processed per
// worklist file. Values <=0 mean unlimited.
func WithMaxItemsPerFile(n int) func(*Executor) {
	return func(e *Executor) {
		e.maxItemsPerFile = n
	}
}

// WithPullRequestLabel sets the label that is added to created pull requests.
// If it is empty, no label is added.
func WithPullRequestLabel(label string) func(*Executor) {
	return func(e *Executor) {
		e.label = label
	}
}

// WithMetrics sets the collector that outcomes are recorded in.
func WithMetrics(c *metrics.Collector) func(*Executor) {
	return func(e *Executor) {
		e.metrics = c
	}
}

func NewExecutor(clt GithubClient, checkpoints CheckpointStore, opts ...func(*Executor)) *Executor {
	e := Executor{
		clt:         clt,
		checkpoints: checkpoints,
		label:       DefPullRequestLabel,
		logger:      zap.L().Named(loggerName),
	}

	for _, opt := range opts {
		opt(&e)
	}

	return &e
}

// Run processes the items of wl in order.
//
// Per-item failures are recorded in the returned report and do not stop the
// run. An error is returned when the checkpoint could not be persisted or ctx
// was cancelled (ErrInterrupted), the report then contains the outcomes of
// the items processed until then.
func (e *Executor) Run(ctx context.Context, wl *worklist.Worklist) (*report.Report, error) {
	rep := report.New()
	stats := runStat{StartTime: time.Now(), Total: wl.Len()}

	defer func() {
		stats.EndTime = time.Now()
		e.logger.Info("run finished", append(stats.LogFields(), logfields.Event("run_finished"))...)
	}()

	var (
		currentFile     string
		resumeSkip      int
		processedInFile int
	)

	for i, item := range wl.Items {
		if item.File != currentFile {
			currentFile = item.File
			processedInFile = 0
			resumeSkip = e.checkpoints.Get(item.File)

			e.logger.Info(
				"processing worklist file",
				logfields.Event("worklist_file_started"),
				logfields.WorklistFile(item.File),
				zap.Int("items", wl.FileLen(item.File)),
				zap.Int("resume_after", resumeSkip),
			)
		}

		if resumeSkip > 0 {
			resumeSkip--
			stats.Resumed++

			// completed in a previous run, it still counts as touched
			// for the reconciliation
			if item.HasDownstream() {
				rep.Touch(item.DownstreamOwner, item.DownstreamRepo)
			}

			continue
		}

		if e.maxItemsPerFile > 0 && processedInFile >= e.maxItemsPerFile {
			stats.CapSkipped++
			continue
		}

		if err := ctx.Err(); err != nil {
			e.logger.Info(
				"run interrupted",
				logfields.Event("run_interrupted"),
				logfields.WorklistFile(item.File),
				logfields.ItemIndex(item.Index),
			)

			return rep, fmt.Errorf("%w: %w", ErrInterrupted, err)
		}

		processedInFile++
		stats.Processed++

		e.logger.Info(
			fmt.Sprintf("%3d(%d) of %d... %s", i+1, stats.Succeeded, stats.Total, item.Section),
			append(item.LogFields(), logfields.Event("item_started"))...,
		)

		category := e.process(ctx, rep, item)
		if category == report.CategorySuccess {
			stats.Succeeded++
		}

		e.metrics.ItemProcessed(string(category))

		e.checkpoints.Record(item.File, item.Index)
		if err := e.checkpoints.Flush(); err != nil {
			return rep, fmt.Errorf("persisting checkpoint after %s failed: %w", item, err)
		}
	}

	return rep, nil
}

func (e *Executor) process(ctx context.Context, rep *report.Report, item *worklist.WorkItem) report.Category {
	logger := e.logger.With(item.LogFields()...)

	if !item.HasUpstream() {
		logger.Info(
			"skipping item, the upstream is not defined",
			logfields.Event("item_skipped"),
			logfields.Outcome(string(report.CategoryMissingUpstream)),
			zap.String("upstream_url", item.UpstreamURL),
		)

		rep.Add(report.CategoryMissingUpstream, item.ID())
		return report.CategoryMissingUpstream
	}

	if !item.HasBranches() {
		logger.Error(
			"skipping item, invalid branches",
			logfields.Event("item_skipped"),
			logfields.Outcome(string(report.CategoryInvalidBranches)),
			zap.String("branches", item.BranchSpec),
		)

		rep.Add(report.CategoryInvalidBranches, item.ID())
		return report.CategoryInvalidBranches
	}

	if !item.HasDownstream() {
		logger.Error(
			"invalid downstream",
			logfields.Event("item_invalid_downstream"),
			zap.String("downstream_url", item.DownstreamURL),
		)
	}

	fullName, err := e.clt.ResolveRepository(ctx, item.DownstreamOwner, item.DownstreamRepo)
	if err != nil {
		return e.recordError(logger, rep, item, fmt.Errorf("resolving downstream repository failed: %w", err))
	}

	rep.Touch(item.DownstreamOwner, item.DownstreamRepo)

	if fullName != item.Downstream() {
		logger.Debug(
			"downstream repository is known under a different name",
			logfields.Event("downstream_name_differs"),
			zap.String("github_full_name", fullName),
		)
	}

	newPR, err := newPullRequest(item)
	if err != nil {
		return e.recordError(logger, rep, item, err)
	}

	pr, err := e.clt.CreatePullRequest(ctx, item.DownstreamOwner, item.DownstreamRepo, newPR)
	if err != nil {
		return e.recordError(logger, rep, item, err)
	}

	logger = logger.With(logfields.PullRequest(pr.Number))

	logger.Info(
		"pull request created",
		logfields.Event("pull_request_created"),
		logfields.Outcome(string(report.CategorySuccess)),
		zap.String("url", pr.URL),
	)

	rep.Add(report.CategorySuccess, item.ID())

	if e.label != "" {
		err := e.clt.AddLabel(ctx, item.DownstreamOwner, item.DownstreamRepo, pr.Number, e.label)
		if err != nil {
			logger.Warn(
				"adding label to pull request failed",
				logfields.Event("pull_request_labeling_failed"),
				logfields.Label(e.label),
				zap.Error(err),
			)
		}
	}

	return report.CategorySuccess
}

func (e *Executor) recordError(logger *zap.Logger, rep *report.Report, item *worklist.WorkItem, err error) report.Category {
	category := rep.AddError(forkprerr.Classify(item.ID(), err))

	logger.Info(
		"skipping item",
		logfields.Event("item_skipped"),
		logfields.Outcome(string(category)),
		zap.Error(err),
	)

	return category
}

func newPullRequest(item *worklist.WorkItem) (*githubclt.NewPullRequest, error) {
	var body bytes.Buffer

	if err := pullRequestBodyTmpl.Execute(&body, item); err != nil {
		return nil, fmt.Errorf("templating pull request body failed: %w", err)
	}

	return &githubclt.NewPullRequest{
		Title: "Update from " + item.Upstream(),
		Body:  body.String(),
		Base:  item.LocalBranch,
		Head:  item.UpstreamOwner + ":" + item.UpstreamBranch,
	}, nil
}
