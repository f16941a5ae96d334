// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hetero

import (
	"math/rand/v2"

	"github.com/pkg/errors"
)

// LinkSplitConfig configures RandomLinkSplit.
type LinkSplitConfig struct {
	// EdgeType is the relation whose labeled edges are split into train/validation/test supervision edges.
	EdgeType EdgeType

	// RevEdgeType is the reverse relation of EdgeType, kept consistent with the message-passing edges of
	// each split. Leave it zero-valued if there is no reverse relation.
	RevEdgeType EdgeType

	// ValFraction and TestFraction of the edges are used for validation and test. The rest is used for training.
	ValFraction, TestFraction float64

	// NegSamplingRatio is the number of sampled non-existing edges per supervision edge. Only 0 is supported:
	// the task is regression over observed edges.
	NegSamplingRatio float64

	// Seed for the random permutation of the edges.
	Seed uint64
}

// LinkSplit is one partition (train, validation or test) of a link-level split.
//
// Graph holds every node and the message-passing edges visible in this split, and the supervision edges are
// given by (LabelSrc[i], LabelDst[i]) of relation EdgeType, with target Labels[i].
type LinkSplit struct {
	Name     string
	Graph    *Graph
	EdgeType EdgeType

	LabelSrc, LabelDst []int32
	Labels             []int32
}

// NumLabels returns the number of supervision edges.
func (s *LinkSplit) NumLabels() int {
	return len(s.Labels)
}

// Split names.
const (
	TrainSplit      = "train"
	ValidationSplit = "validation"
	TestSplit       = "test"
)

// RandomLinkSplit partitions the labeled edges of cfg.EdgeType into disjoint train, validation and test
// supervision sets, according to the configured fractions (rounded down for validation and test).
//
// Message passing uses only edges the split is allowed to see: the train and validation splits use the
// training edges, and the test split uses training plus validation edges. The reverse relation
// cfg.RevEdgeType, if given, is rebuilt for each split as the flipped message-passing edges. All
// other relations and all node stores are shared with g.
//
// The message-passing edges of cfg.EdgeType carry no labels in the splits: their targets are given by the
// supervision edges.
func RandomLinkSplit(g *Graph, cfg LinkSplitConfig) (train, validation, test *LinkSplit, err error) {
	if cfg.NegSamplingRatio != 0 {
		err = errors.Errorf("RandomLinkSplit: negative sampling is not supported, NegSamplingRatio must be 0, got %g",
			cfg.NegSamplingRatio)
		return
	}
	if cfg.ValFraction < 0 || cfg.TestFraction < 0 || cfg.ValFraction+cfg.TestFraction >= 1 {
		err = errors.Errorf("RandomLinkSplit: invalid fractions validation=%g, test=%g: they must be >= 0 and sum < 1",
			cfg.ValFraction, cfg.TestFraction)
		return
	}
	es, found := g.Edges[cfg.EdgeType]
	if !found {
		err = errors.Errorf("RandomLinkSplit: edge type %s not found in graph", cfg.EdgeType)
		return
	}
	if es.Label == nil {
		err = errors.Errorf("RandomLinkSplit: edge type %s has no labels to split", cfg.EdgeType)
		return
	}
	hasReverse := cfg.RevEdgeType != (EdgeType{})
	if hasReverse {
		if _, found := g.Edges[cfg.RevEdgeType]; !found {
			err = errors.Errorf("RandomLinkSplit: reverse edge type %s not found in graph", cfg.RevEdgeType)
			return
		}
	}

	numEdges := es.NumEdges()
	numVal := int(cfg.ValFraction * float64(numEdges))
	numTest := int(cfg.TestFraction * float64(numEdges))
	numTrain := numEdges - numVal - numTest
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	perm := rng.Perm(numEdges)
	trainPos := perm[:numTrain]
	valPos := perm[numTrain : numTrain+numVal]
	testPos := perm[numTrain+numVal:]

	// trainValPos: message passing edges for the test split.
	trainValPos := make([]int, 0, numTrain+numVal)
	trainValPos = append(trainValPos, trainPos...)
	trainValPos = append(trainValPos, valPos...)

	build := func(name string, messagePos, labelPos []int) *LinkSplit {
		split := &LinkSplit{
			Name:     name,
			Graph:    g.ShallowCopy(),
			EdgeType: cfg.EdgeType,
		}
		messages := es.Subset(messagePos)
		messages.Label = nil
		split.Graph.Edges[cfg.EdgeType] = messages
		if hasReverse {
			rev := messages.Reversed()
			if g.Edges[cfg.RevEdgeType].Time == nil {
				rev.Time = nil
			}
			split.Graph.Edges[cfg.RevEdgeType] = rev
		}
		supervision := es.Subset(labelPos)
		split.LabelSrc = supervision.Src
		split.LabelDst = supervision.Dst
		split.Labels = supervision.Label
		return split
	}
	train = build(TrainSplit, trainPos, trainPos)
	validation = build(ValidationSplit, trainPos, valPos)
	test = build(TestSplit, trainValPos, testPos)
	return
}
