package runner

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/conveyor/internal/config"
	"github.com/vk/conveyor/internal/ctxlog"
	"github.com/vk/conveyor/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// runActionStep dispatches a `uses` step to its registered handler.
func (r *Runner) runActionStep(ctx context.Context, job *config.Job, step *config.Step, workspace string, stepCtx *hcl.EvalContext) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("job", job.Name, "step", step.ID)

	action, ok := r.opts.Registry.Lookup(step.Uses)
	if !ok {
		return cty.NilVal, fmt.Errorf("unknown action '%s'", step.Uses)
	}

	var input any
	if action.NewInput != nil {
		input = action.NewInput()
		if err := decodeArgs(input, step.With, stepCtx); err != nil {
			return cty.NilVal, fmt.Errorf("action '%s': %w", step.Uses, err)
		}
	}

	inv := &registry.Invocation{
		Services:  r.opts.Services,
		RunID:     r.opts.RunID,
		Job:       job.Name,
		Workspace: workspace,
		Event:     r.opts.Event,
	}

	logger.Info("Running action.", "action", step.Uses)
	fn := reflect.ValueOf(action.Fn)
	callArgs := []reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(inv)}
	if input == nil {
		callArgs = append(callArgs, reflect.Zero(fn.Type().In(2)))
	} else {
		callArgs = append(callArgs, reflect.ValueOf(input))
	}

	results := fn.Call(callArgs)
	outputVal, errResult := results[0].Interface(), results[1].Interface()
	if errResult != nil {
		return cty.NilVal, errResult.(error)
	}

	out, ok := outputVal.(cty.Value)
	if !ok {
		return cty.NilVal, fmt.Errorf("action '%s' returned non-cty value %T", step.Uses, outputVal)
	}
	if out == cty.NilVal {
		out = cty.EmptyObjectVal
	}
	return out, nil
}

// decodeArgs binds a step's `with` expressions onto the action's typed
// input struct, guided by the struct's hcl tags. Required arguments must be
// present; arguments no field claims are rejected.
func decodeArgs(input any, args map[string]hcl.Expression, evalCtx *hcl.EvalContext) error {
	structVal := reflect.ValueOf(input).Elem()
	structType := structVal.Type()

	claimed := make(map[string]struct{}, structType.NumField())
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		tag := field.Tag.Get("hcl")
		if tag == "" {
			continue
		}
		parts := strings.Split(tag, ",")
		name := parts[0]
		optional := len(parts) > 1 && parts[1] == "optional"
		claimed[name] = struct{}{}

		expr, provided := args[name]
		if !provided {
			if !optional {
				return fmt.Errorf("missing required argument '%s'", name)
			}
			continue
		}

		val, diags := expr.Value(evalCtx)
		if diags.HasErrors() {
			return fmt.Errorf("evaluating argument '%s': %w", name, diags)
		}

		fieldVal := structVal.Field(i)
		impliedTy, err := gocty.ImpliedType(fieldVal.Interface())
		if err != nil {
			return fmt.Errorf("argument '%s' has unsupported Go type %s: %w", name, field.Type, err)
		}
		converted, err := convert.Convert(val, impliedTy)
		if err != nil {
			return fmt.Errorf("argument '%s': %w", name, err)
		}
		if err := gocty.FromCtyValue(converted, fieldVal.Addr().Interface()); err != nil {
			return fmt.Errorf("binding argument '%s': %w", name, err)
		}
	}

	for name := range args {
		if _, ok := claimed[name]; !ok {
			return fmt.Errorf("unsupported argument '%s'", name)
		}
	}
	return nil
}
