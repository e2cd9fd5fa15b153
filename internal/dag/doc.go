// Package dag builds and executes the job dependency graph of a pipeline.
//
// Construction is a multi-pass process: create one node per job, link the
// explicit `needs` edges, validate that every `needs.*` expression reference
// stays inside the declared dependency set, initialize the scheduling
// counters, and reject cycles. Execution is handled by a fixed worker pool
// that releases a job only once every one of its dependencies has reached a
// terminal state, evaluating the job's run condition at release time.
package dag
