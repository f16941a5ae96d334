// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gnn

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
)

// SAGEConv is a GraphSAGE convolution with mean aggregation, from source nodes to destination nodes:
//
//	out[i] = lin_l(mean_{j->i} srcX[j]) + lin_r(dstX[i])
//
// lin_l is a dense layer with bias and lin_r has no bias, both projecting to outputDim.
// Destination nodes without incoming edges aggregate to zero.
//
// srcX is shaped `[num_src_nodes, src_dim]`, dstX is `[num_dst_nodes, dst_dim]` and edgeSrc, edgeDst are the
// node indices of each edge, shaped `[num_edges]`. It returns `[num_dst_nodes, outputDim]`.
func SAGEConv(ctx *context.Context, srcX, dstX, edgeSrc, edgeDst *Node, outputDim int) *Node {
	numDst := dstX.Shape().Dimensions[0]
	aggregated := MeanAggregate(srcX, edgeSrc, edgeDst, numDst)
	out := layers.Dense(ctx.In("lin_l"), aggregated, true, outputDim)
	return Add(out, layers.Dense(ctx.In("lin_r"), dstX, false, outputDim))
}

// MeanAggregate returns, for each of the numDst destination nodes, the mean of the source rows connected to
// it by the edges (edgeSrc[e], edgeDst[e]), or zero if it has no incoming edges.
func MeanAggregate(srcX, edgeSrc, edgeDst *Node, numDst int) *Node {
	if srcX.Rank() != 2 {
		exceptions.Panicf("MeanAggregate(): srcX must be shaped [num_nodes, dim], got %s", srcX.Shape())
	}
	if edgeSrc.Rank() != 1 || !edgeSrc.Shape().Equal(edgeDst.Shape()) {
		exceptions.Panicf("MeanAggregate(): edgeSrc and edgeDst must have the same [num_edges] shape, got %s and %s",
			edgeSrc.Shape(), edgeDst.Shape())
	}
	g := srcX.Graph()
	dtype := srcX.DType()
	dim := srcX.Shape().Dimensions[1]
	numEdges := edgeSrc.Shape().Dimensions[0]
	edgeSrc = InsertAxes(edgeSrc, -1)
	edgeDst = InsertAxes(edgeDst, -1)

	// A source may send to more than one destination, so its row may be gathered more than once.
	messages := Gather(srcX, edgeSrc)
	summed := ScatterSum(Zeros(g, shapes.Make(dtype, numDst, dim)), edgeDst, messages, false, false)
	counts := ScatterSum(Zeros(g, shapes.Make(dtype, numDst, 1)), edgeDst,
		Ones(g, shapes.Make(dtype, numEdges, 1)), false, false)
	return Div(summed, MaxScalar(counts, 1))
}
