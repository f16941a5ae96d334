// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gnn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
	"github.com/gomlx/movielens-linkpred/hetero"
)

// Decoder predicts one value per pair (labelSrc[i], labelDst[i]) of the target relation: the states of the
// source and destination nodes are concatenated and fed to a 2-layer MLP ("lin1" with ReLU, then "lin2").
//
// It returns a `[num_pairs]` tensor.
func Decoder(ctx *context.Context, z map[hetero.NodeType]*Node, schema *Schema, labelSrc, labelDst *Node) *Node {
	hiddenDim := context.GetParamOr(ctx, ParamHiddenChannels, 32)
	srcZ, dstZ := z[schema.Target.Src], z[schema.Target.Dst]
	if srcZ == nil || dstZ == nil {
		exceptions.Panicf("Decoder(): encoder produced no state for node types of the target relation %s", schema.Target)
	}
	numPairs := labelSrc.Shape().Dimensions[0]
	pairs := Concatenate([]*Node{
		Gather(srcZ, InsertAxes(labelSrc, -1)),
		Gather(dstZ, InsertAxes(labelDst, -1)),
	}, -1)
	h := activations.Relu(layers.Dense(ctx.In("lin1"), pairs, true, hiddenDim))
	h = layers.Dense(ctx.In("lin2"), h, true, 1)
	return Reshape(h, numPairs)
}
