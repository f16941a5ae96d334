// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gnn

import (
	"math"
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/movielens-linkpred/hetero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	rates    = hetero.EdgeType{Src: "user", Rel: "rates", Dst: "movie"}
	revRates = rates.Reverse()
)

func onesInitializer(g *Graph, shape shapes.Shape) *Node {
	return Ones(g, shape)
}

// testSplit has 2 users (2 features), 2 movies (3 features), 3 message-passing ratings
// and 2 supervision pairs.
func testSplit(t *testing.T) *hetero.LinkSplit {
	g := hetero.New()
	require.NoError(t, g.Node("user").SetFeatures(hetero.IdentityFeatures(2), 2))
	require.NoError(t, g.Node("movie").SetFeatures([]float32{1, 0, 1, 0, 1, 0}, 3))
	es := g.Edge(rates)
	es.Src = []int32{0, 1, 1}
	es.Dst = []int32{0, 0, 1}
	g.Edges[revRates] = es.Reversed()
	require.NoError(t, g.Validate())
	return &hetero.LinkSplit{
		Name:     "test",
		Graph:    g,
		EdgeType: rates,
		LabelSrc: []int32{0, 1},
		LabelDst: []int32{1, 1},
		Labels:   []int32{4, 2},
	}
}

func TestMeanAggregate(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	srcX := [][]float32{{1, 2}, {3, 4}, {5, 6}}
	edgeSrc := []int32{0, 1, 2, 0}
	edgeDst := []int32{0, 0, 1, 1}
	output, err := ExecOnce(backend, func(srcX, edgeSrc, edgeDst *Node) *Node {
		return MeanAggregate(srcX, edgeSrc, edgeDst, 3)
	}, srcX, edgeSrc, edgeDst)
	require.NoError(t, err)
	// Node 2 has no incoming edges.
	assert.Equal(t, [][]float32{{2, 3}, {3, 4}, {0, 0}}, output.Value())
}

func TestSAGEConv(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New().WithInitializer(onesInitializer)
	srcX := [][]float32{{1, 2}, {3, 4}, {5, 6}}
	dstX := [][]float32{{1, 1, 1}, {0, 0, 0}}
	edgeSrc := []int32{0, 1}
	edgeDst := []int32{0, 0}
	output := context.MustExecOnce(backend, ctx, func(ctx *context.Context, srcX, dstX, edgeSrc, edgeDst *Node) *Node {
		return SAGEConv(ctx, srcX, dstX, edgeSrc, edgeDst, 4)
	}, srcX, dstX, edgeSrc, edgeDst)
	// Node 0: mean([1,2],[3,4]) = [2,3] -> 5 (+1 bias), plus lin_r([1,1,1]) = 3.
	// Node 1: no neighbors, only the bias.
	assert.Equal(t, [][]float32{{9, 9, 9, 9}, {1, 1, 1, 1}}, output.Value())
	// lin_l: 2x4 weights + 4 biases, lin_r: 3x4 weights.
	assert.Equal(t, 2*4+4+3*4, ctx.NumParameters())
}

func TestWeightedMSELoss(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	predictions := []float32{1, 2, 3}
	labels := []int32{1, 4, 3}
	lossWith := func(weights []float32) float32 {
		output, err := ExecOnce(backend, func(labels, predictions *Node) *Node {
			return WeightedMSELoss(weights)([]*Node{labels}, []*Node{predictions})
		}, labels, predictions)
		require.NoError(t, err)
		return tensors.ToScalar[float32](output)
	}
	// Squared errors are [0, 4, 0].
	assert.InDelta(t, 4.0/3.0, lossWith(nil), 1e-6)
	assert.InDelta(t, 4.0/3.0, lossWith([]float32{1, 1, 1, 1, 1}), 1e-6)
	assert.InDelta(t, 2.0/3.0, lossWith([]float32{0, 1, 2, 3, 0.5}), 1e-6)
}

func TestClampedRMSE(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	exec := MustNewExec(backend, func(predictions, targets *Node) (*Node, *Node) {
		return ClampedRMSE(predictions, targets, 0, 5)
	})
	defer exec.Finalize()
	outputs, err := exec.Exec([]float32{-1, 2, 7}, []int32{0, 3, 5})
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.InDelta(t, math.Sqrt(1.0/3.0), tensors.ToScalar[float32](outputs[0]), 1e-6)
	assert.Equal(t, []float32{0, 2, 5}, outputs[1].Value())
}

func TestSchemaAndPackInputs(t *testing.T) {
	split := testSplit(t)
	schema, err := NewSchema(split.Graph, rates)
	require.NoError(t, err)
	assert.Equal(t, []hetero.NodeType{"movie", "user"}, schema.NodeTypes)
	assert.Equal(t, []hetero.EdgeType{revRates, rates}, schema.EdgeTypes)
	assert.Equal(t, map[hetero.NodeType]int{"movie": 3, "user": 2}, schema.FeatureDims)
	assert.Equal(t, 8, schema.NumInputs())

	inputs, labels, err := PackInputs(split, schema)
	require.NoError(t, err)
	require.Len(t, inputs, schema.NumInputs())
	assert.Equal(t, []int{2, 3}, inputs[0].Shape().Dimensions)
	assert.Equal(t, []int{2, 2}, inputs[1].Shape().Dimensions)
	assert.Equal(t, []int32{0, 0, 1}, inputs[2].Value()) // rev_rates sources are movies.
	assert.Equal(t, []int32{0, 0, 1}, inputs[5].Value()) // rates destinations are movies.
	assert.Equal(t, []int32{0, 1}, inputs[6].Value())
	assert.Equal(t, []int32{1, 1}, inputs[7].Value())
	require.Len(t, labels, 1)
	assert.Equal(t, []int32{4, 2}, labels[0].Value())

	// Errors.
	_, err = NewSchema(split.Graph, hetero.EdgeType{Src: "user", Rel: "likes", Dst: "movie"})
	require.Error(t, err)
	noFeatures := split.Graph.ShallowCopy()
	noFeatures.Nodes["user"] = &hetero.NodeStore{Count: 2}
	_, err = NewSchema(noFeatures, rates)
	require.Error(t, err)
	wrongTarget := *split
	wrongTarget.EdgeType = revRates
	_, _, err = PackInputs(&wrongTarget, schema)
	require.Error(t, err)
}

func TestMaterializeAndReuse(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	split := testSplit(t)
	schema, err := NewSchema(split.Graph, rates)
	require.NoError(t, err)

	ctx := context.New()
	ctx.SetParam(ParamHiddenChannels, 4)
	ctx.SetParam(context.ParamInitialSeed, int64(42))
	numParams, err := Materialize(backend, ctx, schema, split)
	require.NoError(t, err)
	// Layer 0: rev_rates (movie->user): 3x4+4 + 2x4; rates (user->movie): 2x4+4 + 3x4.
	// Layer 1: 2 x (4x4+4 + 4x4). Decoder: 8x4+4 + 4x1+1.
	assert.Equal(t, 24+24+72+36+5, numParams)
	assert.Equal(t, numParams, NumParameters(ctx))

	// Materializing again on a unique context fails, since the variables already exist.
	_, err = Materialize(backend, ctx, schema, split)
	require.Error(t, err)

	// Running the model with a reusing context works, and it doesn't create new variables.
	inputs, _, err := PackInputs(split, schema)
	require.NoError(t, err)
	modelFn := ModelGraph(schema)
	predictions := context.MustExecOnce(backend, ctx.Reuse(), func(ctx *context.Context, inputs []*Node) *Node {
		return modelFn(ctx, nil, inputs)[0]
	}, tensorsToArgs(inputs)...)
	assert.Equal(t, []int{2}, predictions.Shape().Dimensions)
	for _, v := range predictions.Value().([]float32) {
		assert.False(t, math.IsNaN(float64(v)))
	}
	assert.Equal(t, numParams, NumParameters(ctx))
}
