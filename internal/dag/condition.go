package dag

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/conveyor/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// evaluateCondition decides whether a ready node may run. All of the node's
// dependencies are already terminal when this is called.
//
// Success propagation comes first: any failed or skipped dependency skips
// the node, whether or not it declares a `when` expression. A declared
// `when` is then evaluated against the dependencies' results and outputs
// and must yield a boolean. A false condition skips the node; an evaluation
// error fails it, since a broken condition is a pipeline bug, not a benign
// skip.
func (e *Executor) evaluateCondition(ctx context.Context, node *Node) (ready bool, skipReason string, err error) {
	logger := ctxlog.FromContext(ctx)

	for _, dep := range node.Deps {
		switch dep.State() {
		case Failed:
			return false, fmt.Sprintf("dependency '%s' failed", dep.ID), nil
		case Skipped:
			return false, fmt.Sprintf("dependency '%s' was skipped", dep.ID), nil
		case Succeeded:
			// keep checking
		default:
			// Scheduler bug: a non-terminal dependency must never be seen here.
			return false, "", fmt.Errorf("internal error: dependency '%s' of '%s' is not terminal", dep.ID, node.ID)
		}
	}

	if node.Job.When == nil {
		return true, "", nil
	}

	val, diags := node.Job.When.Value(e.buildEvalContext(node))
	if diags.HasErrors() {
		return false, "", fmt.Errorf("evaluating run condition of '%s': %w", node.ID, diags)
	}
	boolVal, convErr := convert.Convert(val, cty.Bool)
	if convErr != nil || boolVal.IsNull() {
		return false, "", fmt.Errorf("run condition of '%s' must produce a boolean, got %s", node.ID, val.Type().FriendlyName())
	}

	if !boolVal.True() {
		logger.Debug("Run condition evaluated to false.", "job", node.ID)
		return false, "run condition evaluated to false", nil
	}
	return true, "", nil
}

// buildEvalContext assembles the HCL evaluation context for a node: the
// shared base variables plus a `needs` object restricted to the node's
// declared dependencies. Outputs are exposed only for succeeded
// dependencies; everything else contributes an empty output object.
func (e *Executor) buildEvalContext(node *Node) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(e.baseVars)+1)
	for k, v := range e.baseVars {
		vars[k] = v
	}

	needs := make(map[string]cty.Value, len(node.Deps))
	for _, dep := range node.Deps {
		outputs := cty.EmptyObjectVal
		if dep.State() == Succeeded && dep.Outputs != cty.NilVal {
			outputs = dep.Outputs
		}
		needs[dep.ID] = cty.ObjectVal(map[string]cty.Value{
			"result":  cty.StringVal(dep.State().String()),
			"outputs": outputs,
		})
	}
	if len(needs) > 0 {
		vars["needs"] = cty.ObjectVal(needs)
	}

	return &hcl.EvalContext{Variables: vars}
}
