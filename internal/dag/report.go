package dag

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// JobResult is the terminal record of one job in a finished run.
type JobResult struct {
	Name     string
	Status   Status
	Err      error
	Reason   string
	Duration time.Duration
}

// Report is the user-visible outcome of a pipeline run: a mix of succeeded,
// failed, and skipped jobs.
type Report struct {
	Pipeline string
	Jobs     []*JobResult
}

func buildReport(graph *Graph) *Report {
	report := &Report{Pipeline: graph.Pipeline.Name}
	for _, node := range graph.Nodes {
		report.Jobs = append(report.Jobs, &JobResult{
			Name:     node.ID,
			Status:   node.State(),
			Err:      node.Err,
			Reason:   node.SkipReason,
			Duration: node.FinishedAt.Sub(node.StartedAt),
		})
	}
	sort.Slice(report.Jobs, func(i, j int) bool {
		return report.Jobs[i].Name < report.Jobs[j].Name
	})
	return report
}

// Failed reports whether any job ended in the Failed state.
func (r *Report) Failed() bool {
	for _, j := range r.Jobs {
		if j.Status == Failed {
			return true
		}
	}
	return false
}

// Job returns the result for the named job, or nil.
func (r *Report) Job(name string) *JobResult {
	for _, j := range r.Jobs {
		if j.Name == name {
			return j
		}
	}
	return nil
}

// Summary renders a compact human-readable table of the run.
func (r *Report) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "pipeline %s:\n", r.Pipeline)
	for _, j := range r.Jobs {
		fmt.Fprintf(&sb, "  %-20s %-10s %s", j.Name, j.Status, j.Duration.Round(time.Millisecond))
		if j.Err != nil {
			fmt.Fprintf(&sb, "  (%v)", j.Err)
		} else if j.Reason != "" {
			fmt.Fprintf(&sb, "  (%s)", j.Reason)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
