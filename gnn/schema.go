// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gnn implements a heterogeneous GraphSAGE link regression model with GoMLX: an encoder with
// per-relation SAGE convolutions, summed per destination node type, and an MLP edge decoder that
// predicts a value for each (source, destination) pair of the target relation.
//
// The model is full-batch: the whole graph (node features and edge indices of every relation) is fed
// as input tensors, in the order defined by a Schema.
package gnn

import (
	"github.com/gomlx/movielens-linkpred/hetero"
	"github.com/pkg/errors"
)

// Schema fixes the node types and relations (edge types) of the model, and the order in which their tensors
// are given as inputs. It also holds the target relation, whose edges are decoded.
type Schema struct {
	NodeTypes []hetero.NodeType
	EdgeTypes []hetero.EdgeType
	Target    hetero.EdgeType

	// FeatureDims holds the input feature dimension of each node type.
	FeatureDims map[hetero.NodeType]int
}

// NewSchema creates the schema from the graph's metadata. All node types must have features, and the
// target relation must be one of the graph's relations.
func NewSchema(g *hetero.Graph, target hetero.EdgeType) (*Schema, error) {
	nodeTypes, edgeTypes := g.Metadata()
	s := &Schema{
		NodeTypes:   nodeTypes,
		EdgeTypes:   edgeTypes,
		Target:      target,
		FeatureDims: make(map[hetero.NodeType]int, len(nodeTypes)),
	}
	for _, nt := range nodeTypes {
		ns := g.Nodes[nt]
		if !ns.HasFeatures() {
			return nil, errors.Errorf("node type %q has no features, the model requires features for all nodes", nt)
		}
		s.FeatureDims[nt] = ns.Dim
	}
	if _, found := g.Edges[target]; !found {
		return nil, errors.Errorf("target relation %s not in graph", target)
	}
	return s, nil
}

// NumInputs returns the number of input tensors of the model: one feature matrix per node type, source and
// destination indices per edge type, and source and destination indices of the pairs to decode.
func (s *Schema) NumInputs() int {
	return len(s.NodeTypes) + 2*len(s.EdgeTypes) + 2
}
