package dag

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/conveyor/internal/ctxlog"
)

// linkNodes establishes the explicit `needs` edges and then validates that
// every expression reference to another job stays inside the declared
// dependency set. References never create edges on their own: ordering is
// explicit or it does not exist.
func linkNodes(ctx context.Context, graph *Graph) error {
	logger := ctxlog.FromContext(ctx)

	for _, node := range graph.Nodes {
		for _, depName := range node.Job.Needs {
			if depName == node.ID {
				return fmt.Errorf("job '%s' cannot depend on itself", node.ID)
			}
			depNode, ok := graph.Nodes[depName]
			if !ok {
				return fmt.Errorf("job '%s' depends on undefined job '%s'", node.ID, depName)
			}
			if _, exists := node.Deps[depName]; !exists {
				logger.Debug("Linking explicit dependency.", "from", node.ID, "to", depName)
				node.Deps[depName] = depNode
				depNode.Dependents[node.ID] = node
			}
		}

		for _, expr := range nodeExpressions(node) {
			if err := validateNeedsRefs(node, expr); err != nil {
				return err
			}
		}
	}
	return nil
}

// nodeExpressions collects every expression attached to a job that may
// reference dependency state.
func nodeExpressions(node *Node) []hcl.Expression {
	var exprs []hcl.Expression
	if node.Job.When != nil {
		exprs = append(exprs, node.Job.When)
	}
	for _, e := range node.Job.Env {
		exprs = append(exprs, e)
	}
	for _, out := range node.Job.Outputs {
		exprs = append(exprs, out.Value)
	}
	for _, step := range node.Job.Steps {
		if step.Run != nil {
			exprs = append(exprs, step.Run)
		}
		for _, e := range step.With {
			exprs = append(exprs, e)
		}
		for _, e := range step.Env {
			exprs = append(exprs, e)
		}
	}
	return exprs
}

// validateNeedsRefs rejects `needs.<job>` traversals naming jobs outside the
// node's declared dependency list.
func validateNeedsRefs(node *Node, expr hcl.Expression) error {
	for _, traversal := range expr.Variables() {
		if traversal.RootName() != "needs" {
			continue
		}
		if len(traversal) < 2 {
			return fmt.Errorf("job '%s': bare 'needs' reference is not allowed", node.ID)
		}
		attr, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			return fmt.Errorf("job '%s': malformed 'needs' reference", node.ID)
		}
		if _, declared := node.Deps[attr.Name]; !declared {
			return fmt.Errorf("job '%s' references 'needs.%s' but does not declare '%s' in its needs", node.ID, attr.Name, attr.Name)
		}
	}
	return nil
}
