// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package linkpred

import (
	"math"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/movielens-linkpred/gnn"
	"github.com/gomlx/movielens-linkpred/hetero"
	"github.com/pkg/errors"
)

// Evaluator computes the RMSE of the model predictions, clamped to a range, on a fixed set of splits.
// It reuses the model variables in the context, so it always evaluates the current state of training.
type Evaluator struct {
	exec   *context.Exec
	splits []*hetero.LinkSplit

	// args holds the packed inputs followed by the labels for each split, or nil for empty splits.
	args [][]any
}

// NewEvaluator creates an evaluator for the given splits. The model variables must already exist in ctx
// (see gnn.Materialize).
//
// Predictions are clamped to [minValue, maxValue] before computing the RMSE.
func NewEvaluator(backend backends.Backend, ctx *context.Context, schema *gnn.Schema, minValue, maxValue float64,
	splits ...*hetero.LinkSplit) (*Evaluator, error) {
	if minValue > maxValue {
		return nil, errors.Errorf("invalid evaluation range [%g, %g]", minValue, maxValue)
	}
	e := &Evaluator{splits: splits, args: make([][]any, len(splits))}
	for i, split := range splits {
		if split.NumLabels() == 0 {
			continue
		}
		inputs, labels, err := gnn.PackInputs(split, schema)
		if err != nil {
			return nil, err
		}
		args := make([]any, 0, len(inputs)+len(labels))
		for _, t := range inputs {
			args = append(args, t)
		}
		for _, t := range labels {
			args = append(args, t)
		}
		e.args[i] = args
	}
	modelFn := gnn.ModelGraph(schema)
	var err error
	e.exec, err = context.NewExec(backend, ctx.Reuse(), func(ctx *context.Context, inputs []*Node) (rmse, predictions *Node) {
		numInputs := len(inputs) - 1
		predictions = modelFn(ctx, nil, inputs[:numInputs])[0]
		return gnn.ClampedRMSE(predictions, inputs[numInputs], minValue, maxValue)
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create evaluation executor")
	}
	return e, nil
}

// Splits returns the splits being evaluated, in order.
func (e *Evaluator) Splits() []*hetero.LinkSplit {
	return e.splits
}

// EvalSplit returns the RMSE and the clamped predictions of the i-th split.
// For a split without supervision edges it returns NaN and no predictions.
func (e *Evaluator) EvalSplit(i int) (rmse float64, predictions []float32, err error) {
	if e.args[i] == nil {
		return math.NaN(), nil, nil
	}
	var outputs []*tensors.Tensor
	outputs, err = e.exec.Exec(e.args[i]...)
	if err != nil {
		return 0, nil, errors.WithMessagef(err, "failed to evaluate split %q", e.splits[i].Name)
	}
	defer func() {
		for _, t := range outputs {
			_ = t.FinalizeAll()
		}
	}()
	rmse = float64(tensors.ToScalar[float32](outputs[0]))
	predictions = tensors.MustCopyFlatData[float32](outputs[1])
	return rmse, predictions, nil
}

// Eval returns the RMSE of each split.
func (e *Evaluator) Eval() ([]float64, error) {
	results := make([]float64, len(e.splits))
	for i := range e.splits {
		rmse, _, err := e.EvalSplit(i)
		if err != nil {
			return nil, err
		}
		results[i] = rmse
	}
	return results, nil
}

// Finalize frees the compiled graphs and the input tensors.
func (e *Evaluator) Finalize() {
	e.exec.Finalize()
	for _, args := range e.args {
		for _, arg := range args {
			_ = arg.(*tensors.Tensor).FinalizeAll()
		}
	}
	e.args = nil
}
