// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gnn

import (
	"fmt"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
	"github.com/gomlx/movielens-linkpred/hetero"
)

var (
	// ParamHiddenChannels context hyperparameter defines the width of the node states of every layer, and of the
	// hidden layer of the decoder.
	// The default is 32.
	ParamHiddenChannels = "hidden_channels"

	// ParamNumLayers context hyperparameter defines the number of SAGE convolution layers of the encoder.
	// The default is 2.
	ParamNumLayers = "gnn_num_layers"
)

// EdgeIndex holds the source and destination node indices of the edges of one relation, each shaped `[num_edges]`.
type EdgeIndex struct {
	Src, Dst *Node
}

// Encoder computes the node states of every node type, given their input features x and the edges of every
// relation.
//
// Each layer runs one SAGEConv per relation, with its own weights (under scope "conv_<layer>/<relation>"), and
// the results for relations sharing a destination node type are summed. A ReLU is applied between layers, but
// not after the last one. Node types that are not the destination of any relation don't get a state from
// that layer on.
func Encoder(ctx *context.Context, schema *Schema, x map[hetero.NodeType]*Node, edges map[hetero.EdgeType]EdgeIndex) map[hetero.NodeType]*Node {
	hiddenDim := context.GetParamOr(ctx, ParamHiddenChannels, 32)
	numLayers := context.GetParamOr(ctx, ParamNumLayers, 2)
	if numLayers < 1 {
		exceptions.Panicf("invalid %s=%d, it must be >= 1", ParamNumLayers, numLayers)
	}
	states := x
	for layer := range numLayers {
		layerCtx := ctx.In(fmt.Sprintf("conv_%d", layer))
		next := make(map[hetero.NodeType]*Node, len(states))
		for _, et := range schema.EdgeTypes {
			src, dst := states[et.Src], states[et.Dst]
			if src == nil || dst == nil {
				continue
			}
			ei, found := edges[et]
			if !found {
				exceptions.Panicf("Encoder(): missing edges for relation %s", et)
			}
			out := SAGEConv(layerCtx.In(et.String()), src, dst, ei.Src, ei.Dst, hiddenDim)
			if prev, found := next[et.Dst]; found {
				out = Add(prev, out)
			}
			next[et.Dst] = out
		}
		if layer < numLayers-1 {
			for nt, state := range next {
				next[nt] = activations.Relu(state)
			}
		}
		states = next
	}
	return states
}
