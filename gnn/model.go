// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gnn

import (
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
	"github.com/gomlx/movielens-linkpred/hetero"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ModelScope is the context scope holding all the model variables.
const ModelScope = "model"

// UnpackInputs splits the model inputs, packed by PackInputs, into node features, edge indices and the
// supervision pairs.
func UnpackInputs(schema *Schema, inputs []*Node) (x map[hetero.NodeType]*Node, edges map[hetero.EdgeType]EdgeIndex,
	labelSrc, labelDst *Node) {
	if len(inputs) != schema.NumInputs() {
		exceptions.Panicf("model expected %d inputs (%d node types, %d edge types), got %d",
			schema.NumInputs(), len(schema.NodeTypes), len(schema.EdgeTypes), len(inputs))
	}
	x = make(map[hetero.NodeType]*Node, len(schema.NodeTypes))
	for _, nt := range schema.NodeTypes {
		x[nt] = inputs[0]
		inputs = inputs[1:]
	}
	edges = make(map[hetero.EdgeType]EdgeIndex, len(schema.EdgeTypes))
	for _, et := range schema.EdgeTypes {
		edges[et] = EdgeIndex{Src: inputs[0], Dst: inputs[1]}
		inputs = inputs[2:]
	}
	return x, edges, inputs[0], inputs[1]
}

// ModelGraph returns the train.ModelFn of the model: it encodes the graph given in the inputs and returns
// the decoded predictions for the supervision pairs, shaped `[num_pairs]`.
func ModelGraph(schema *Schema) train.ModelFn {
	return func(ctx *context.Context, spec any, inputs []*Node) []*Node {
		_ = spec
		ctx = ctx.In(ModelScope)
		x, edges, labelSrc, labelDst := UnpackInputs(schema, inputs)
		z := Encoder(ctx.In("encoder"), schema, x, edges)
		return []*Node{Decoder(ctx.In("decoder"), z, schema, labelSrc, labelDst)}
	}
}

// NumParameters returns the number of scalar values in all model variables.
func NumParameters(ctx *context.Context) int {
	total := 0
	for v := range ctx.In(ModelScope).IterVariablesInScope() {
		total += v.Shape().Size()
	}
	return total
}

// Materialize creates and initializes all model variables, whose shapes depend on the input features, by
// running the model once on the given split. No gradients are computed and no optimizer is involved.
//
// After that, the model should be used with ctx.Reuse(). It returns the number of model parameters.
func Materialize(backend backends.Backend, ctx *context.Context, schema *Schema, split *hetero.LinkSplit) (numParams int, err error) {
	inputs, _, err := PackInputs(split, schema)
	if err != nil {
		return 0, err
	}
	modelFn := ModelGraph(schema)
	var exec *context.Exec
	exec, err = context.NewExec(backend, ctx, func(ctx *context.Context, inputs []*Node) *Node {
		return modelFn(ctx, nil, inputs)[0]
	})
	if err != nil {
		return 0, errors.WithMessage(err, "failed to create model executor")
	}
	defer exec.Finalize()
	if _, err = exec.Exec(tensorsToArgs(inputs)...); err != nil {
		return 0, errors.WithMessagef(err, "failed to materialize model with split %q", split.Name)
	}
	numParams = NumParameters(ctx)
	klog.V(1).Infof("model materialized with %d parameters", numParams)
	return numParams, nil
}

// tensorsToArgs converts to the variadic arguments taken by context.Exec.
func tensorsToArgs(ts []*tensors.Tensor) []any {
	args := make([]any, len(ts))
	for i, t := range ts {
		args[i] = t
	}
	return args
}
