// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gnn

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/movielens-linkpred/hetero"
	"github.com/pkg/errors"
)

// PackInputs converts a split to the model's input tensors, in schema order:
//
//   - Node features, one `(Float32)[num_nodes, dim]` tensor per node type.
//   - For each edge type, its source and destination node indices, each `(Int32)[num_edges]`.
//   - Source and destination node indices of the supervision pairs, each `(Int32)[num_pairs]`.
//
// The labels are one `(Int32)[num_pairs]` tensor with the targets of the supervision pairs.
func PackInputs(split *hetero.LinkSplit, schema *Schema) (inputs, labels []*tensors.Tensor, err error) {
	if split.EdgeType != schema.Target {
		return nil, nil, errors.Errorf("split %q is for relation %s, but model target is %s",
			split.Name, split.EdgeType, schema.Target)
	}
	inputs = make([]*tensors.Tensor, 0, schema.NumInputs())
	for _, nt := range schema.NodeTypes {
		ns, found := split.Graph.Nodes[nt]
		if !found {
			return nil, nil, errors.Errorf("split %q has no nodes of type %q", split.Name, nt)
		}
		if ns.Dim != schema.FeatureDims[nt] {
			return nil, nil, errors.Errorf("split %q: node type %q has feature dimension %d, model expects %d",
				split.Name, nt, ns.Dim, schema.FeatureDims[nt])
		}
		inputs = append(inputs, tensors.FromFlatDataAndDimensions(ns.Features, ns.NumNodes(), ns.Dim))
	}
	for _, et := range schema.EdgeTypes {
		es, found := split.Graph.Edges[et]
		if !found {
			return nil, nil, errors.Errorf("split %q has no edges of type %s", split.Name, et)
		}
		inputs = append(inputs,
			tensors.FromFlatDataAndDimensions(es.Src, es.NumEdges()),
			tensors.FromFlatDataAndDimensions(es.Dst, es.NumEdges()))
	}
	numPairs := split.NumLabels()
	if len(split.LabelSrc) != numPairs || len(split.LabelDst) != numPairs {
		return nil, nil, errors.Errorf("split %q has %d labels, but %d sources and %d destinations",
			split.Name, numPairs, len(split.LabelSrc), len(split.LabelDst))
	}
	inputs = append(inputs,
		tensors.FromFlatDataAndDimensions(split.LabelSrc, numPairs),
		tensors.FromFlatDataAndDimensions(split.LabelDst, numPairs))
	labels = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(split.Labels, numPairs)}
	return inputs, labels, nil
}
