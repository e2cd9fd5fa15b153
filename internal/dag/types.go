package dag

import (
	"sync/atomic"
	"time"

	"github.com/vk/conveyor/internal/config"
	"github.com/zclconf/go-cty/cty"
)

// Status is the lifecycle state of a job node.
type Status int32

const (
	// Pending means the node is waiting for its dependencies.
	Pending Status = iota
	// Running means a worker is executing the node's job.
	Running
	// Succeeded, Failed, and Skipped are the terminal states.
	Succeeded
	Failed
	Skipped
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is one of the three end states.
func (s Status) Terminal() bool {
	return s == Succeeded || s == Failed || s == Skipped
}

// Node is a single job in the execution graph.
type Node struct {
	// ID is the job name, unique within one pipeline.
	ID  string
	Job *config.Job

	// Deps and Dependents are the incoming and outgoing edges.
	Deps       map[string]*Node
	Dependents map[string]*Node

	// depCount tracks how many dependencies have not yet reached a
	// terminal state. The node becomes ready when it hits zero.
	depCount atomic.Int32
	state    atomic.Int32

	// Err holds the failure cause for Failed nodes; SkipReason explains
	// Skipped ones.
	Err        error
	SkipReason string

	// Outputs is the job's declared output object, populated only when the
	// node reaches Succeeded. Dependents never observe outputs of a node
	// in any other state.
	Outputs cty.Value

	StartedAt  time.Time
	FinishedAt time.Time
}

// State returns the node's current status.
func (n *Node) State() Status {
	return Status(n.state.Load())
}

func (n *Node) setState(s Status) {
	n.state.Store(int32(s))
}

// SetInitialCounters primes the scheduling counter from the dependency set.
func (n *Node) SetInitialCounters() {
	n.depCount.Store(int32(len(n.Deps)))
}

// Graph is the full job DAG of one pipeline run.
type Graph struct {
	Pipeline *config.Pipeline
	Nodes    map[string]*Node
}
