package dag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/conveyor/internal/config"
	"github.com/vk/conveyor/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// JobRunner executes one job to completion inside its own isolated
// environment and returns the job's declared output object.
type JobRunner interface {
	RunJob(ctx context.Context, job *config.Job, evalCtx *hcl.EvalContext) (cty.Value, error)
}

// Executor drives a graph to completion with a fixed pool of workers.
type Executor struct {
	Graph      *Graph
	runner     JobRunner
	numWorkers int
	// baseVars are the evaluation variables shared by every job: event,
	// env, and secrets. The per-job `needs` object is layered on top.
	baseVars map[string]cty.Value
	// jobTimeout applies to jobs that declare none of their own.
	jobTimeout time.Duration

	wg sync.WaitGroup
}

// NewExecutor returns an executor for the given graph.
func NewExecutor(graph *Graph, runner JobRunner, workers int, baseVars map[string]cty.Value, jobTimeout time.Duration) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		Graph:      graph,
		runner:     runner,
		numWorkers: workers,
		baseVars:   baseVars,
		jobTimeout: jobTimeout,
	}
}

// Run executes the graph and returns the per-job report. A job failure never
// aborts sibling branches; only jobs that transitively depend on the failed
// one are affected, through their own run conditions. The returned error is
// non-nil only when at least one job failed.
func (e *Executor) Run(ctx context.Context) (*Report, error) {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *Node, len(e.Graph.Nodes))

	rootCount := 0
	for _, node := range e.Graph.Nodes {
		if node.depCount.Load() == 0 {
			readyChan <- node
			rootCount++
		}
	}
	logger.Debug("Executor initialized.", "roots", rootCount, "workers", e.numWorkers)

	e.wg.Add(len(e.Graph.Nodes))
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(ctx, readyChan, i)
	}

	e.wg.Wait()
	close(readyChan)

	report := buildReport(e.Graph)
	for _, res := range report.Jobs {
		logger.Info("Job finished.", "job", res.Name, "status", res.Status.String(), "duration", res.Duration)
	}

	if report.Failed() {
		return report, fmt.Errorf("pipeline '%s' finished with failed jobs", e.Graph.Pipeline.Name)
	}
	return report, nil
}

// worker is the processing loop of one concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *Node, workerID int) {
	logger := ctxlog.FromContext(ctx).With("worker", workerID)

	for node := range readyChan {
		nodeLogger := logger.With("job", node.ID)

		switch {
		case ctx.Err() != nil:
			nodeLogger.Warn("Run canceled, skipping job.")
			e.finish(node, Skipped, nil, "run canceled")

		default:
			ready, reason, condErr := e.evaluateCondition(ctx, node)
			switch {
			case condErr != nil:
				nodeLogger.Error("Run condition evaluation failed.", "error", condErr)
				e.finish(node, Failed, condErr, "")
			case !ready:
				nodeLogger.Info("Skipping job.", "reason", reason)
				e.finish(node, Skipped, nil, reason)
			default:
				e.execute(ctx, node, nodeLogger)
			}
		}

		// The node is terminal either way; release its dependents.
		for _, dependent := range node.Dependents {
			if dependent.depCount.Add(-1) == 0 {
				nodeLogger.Debug("Unblocking dependent job.", "dependent", dependent.ID)
				readyChan <- dependent
			}
		}
		e.wg.Done()
	}
}

// execute runs a single ready node's job.
func (e *Executor) execute(ctx context.Context, node *Node, logger *slog.Logger) {
	node.setState(Running)
	node.StartedAt = time.Now()
	logger.Info("Starting job.")

	timeout := node.Job.Timeout
	if timeout == 0 {
		timeout = e.jobTimeout
	}
	jobCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outputs, err := e.runner.RunJob(jobCtx, node.Job, e.buildEvalContext(node))
	if err != nil {
		e.finish(node, Failed, err, "")
		return
	}
	node.Outputs = outputs
	e.finish(node, Succeeded, nil, "")
}

// finish transitions a node to a terminal state exactly once.
func (e *Executor) finish(node *Node, status Status, err error, skipReason string) {
	node.Err = err
	node.SkipReason = skipReason
	node.FinishedAt = time.Now()
	if node.StartedAt.IsZero() {
		node.StartedAt = node.FinishedAt
	}
	node.setState(status)
}
