// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hetero holds heterogeneous graph snapshots on the host: typed node sets with
// their features, typed edge sets (relations) with optional per-edge labels, and the
// transforms used to prepare them for link prediction (ToUndirected and RandomLinkSplit).
//
// Everything in this package is plain Go data: it is converted to tensors only when
// fed to a model (see package gnn).
package hetero

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// NodeType names a set of nodes, e.g. "user" or "movie".
type NodeType = string

// EdgeType identifies a relation as a (source node type, relation name, destination node type) triple.
type EdgeType struct {
	Src NodeType
	Rel string
	Dst NodeType
}

// EdgeTypeSeparator is used to join the parts of an EdgeType into its string form.
const EdgeTypeSeparator = "__"

// String returns "src__rel__dst", which is also a valid context scope name.
func (et EdgeType) String() string {
	return strings.Join([]string{et.Src, et.Rel, et.Dst}, EdgeTypeSeparator)
}

// Reverse returns the edge type of the reversed relation, named "rev_" + Rel.
func (et EdgeType) Reverse() EdgeType {
	return EdgeType{Src: et.Dst, Rel: ReversePrefix + et.Rel, Dst: et.Src}
}

// ReversePrefix is prepended to the relation name of synthesized reverse relations.
const ReversePrefix = "rev_"

// compareEdgeTypes orders edge types by source, relation and destination.
func compareEdgeTypes(a, b EdgeType) int {
	if c := strings.Compare(a.Src, b.Src); c != 0 {
		return c
	}
	if c := strings.Compare(a.Rel, b.Rel); c != 0 {
		return c
	}
	return strings.Compare(a.Dst, b.Dst)
}

// NodeStore holds the nodes of one type.
//
// Nodes either have a feature matrix (Features, row-major, with Dim columns), in which case the number of
// nodes is derived from its number of rows, or only a Count. SetFeatures drops the Count, so the two can never
// disagree.
type NodeStore struct {
	Features []float32
	Dim      int

	// Count is the number of nodes, used only while there are no Features.
	Count int
}

// NumNodes returns the number of nodes in the store.
func (ns *NodeStore) NumNodes() int {
	if ns.Dim > 0 {
		return len(ns.Features) / ns.Dim
	}
	return ns.Count
}

// HasFeatures returns whether a feature matrix is set.
func (ns *NodeStore) HasFeatures() bool {
	return ns.Dim > 0
}

// SetFeatures sets the feature matrix (row-major, dim columns) and drops the explicit node count.
func (ns *NodeStore) SetFeatures(features []float32, dim int) error {
	if dim <= 0 {
		return errors.Errorf("feature dimension must be > 0, got %d", dim)
	}
	if len(features)%dim != 0 {
		return errors.Errorf("features length %d is not a multiple of dimension %d", len(features), dim)
	}
	ns.Features = features
	ns.Dim = dim
	ns.Count = 0
	return nil
}

// Row returns the features of node i. It shares memory with the store.
func (ns *NodeStore) Row(i int) []float32 {
	return ns.Features[i*ns.Dim : (i+1)*ns.Dim]
}

// IdentityFeatures returns a row-major n×n one-hot matrix: each node gets its own indicator vector.
func IdentityFeatures(n int) []float32 {
	features := make([]float32, n*n)
	for i := range n {
		features[i*n+i] = 1
	}
	return features
}

// EdgeStore holds the edges of one relation as parallel slices of source and destination node indices.
//
// Label (e.g. a rating) and Time (e.g. a timestamp) are optional per-edge attributes: when not nil they
// are aligned with Src/Dst.
type EdgeStore struct {
	Src, Dst []int32
	Label    []int32
	Time     []int64
}

// NumEdges returns the number of edges.
func (es *EdgeStore) NumEdges() int {
	return len(es.Src)
}

// Subset returns a new EdgeStore with the edges at the given positions, in that order.
// Labels and times are carried along if present.
func (es *EdgeStore) Subset(positions []int) *EdgeStore {
	sub := &EdgeStore{
		Src: make([]int32, len(positions)),
		Dst: make([]int32, len(positions)),
	}
	if es.Label != nil {
		sub.Label = make([]int32, len(positions))
	}
	if es.Time != nil {
		sub.Time = make([]int64, len(positions))
	}
	for i, pos := range positions {
		sub.Src[i] = es.Src[pos]
		sub.Dst[i] = es.Dst[pos]
		if sub.Label != nil {
			sub.Label[i] = es.Label[pos]
		}
		if sub.Time != nil {
			sub.Time[i] = es.Time[pos]
		}
	}
	return sub
}

// Reversed returns a copy of the edges with source and destination swapped. Attributes are copied.
func (es *EdgeStore) Reversed() *EdgeStore {
	return &EdgeStore{
		Src:   slices.Clone(es.Dst),
		Dst:   slices.Clone(es.Src),
		Label: slices.Clone(es.Label),
		Time:  slices.Clone(es.Time),
	}
}

// Graph is a heterogeneous graph snapshot.
type Graph struct {
	Nodes map[NodeType]*NodeStore
	Edges map[EdgeType]*EdgeStore
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		Nodes: make(map[NodeType]*NodeStore),
		Edges: make(map[EdgeType]*EdgeStore),
	}
}

// Node returns the store for the node type, creating an empty one if needed.
func (g *Graph) Node(nodeType NodeType) *NodeStore {
	ns, found := g.Nodes[nodeType]
	if !found {
		ns = &NodeStore{}
		g.Nodes[nodeType] = ns
	}
	return ns
}

// Edge returns the store for the edge type, creating an empty one if needed.
func (g *Graph) Edge(edgeType EdgeType) *EdgeStore {
	es, found := g.Edges[edgeType]
	if !found {
		es = &EdgeStore{}
		g.Edges[edgeType] = es
	}
	return es
}

// Metadata returns the node types and edge types of the graph, both sorted.
func (g *Graph) Metadata() (nodeTypes []NodeType, edgeTypes []EdgeType) {
	nodeTypes = make([]NodeType, 0, len(g.Nodes))
	for nt := range g.Nodes {
		nodeTypes = append(nodeTypes, nt)
	}
	slices.Sort(nodeTypes)
	edgeTypes = make([]EdgeType, 0, len(g.Edges))
	for et := range g.Edges {
		edgeTypes = append(edgeTypes, et)
	}
	slices.SortFunc(edgeTypes, compareEdgeTypes)
	return
}

// ShallowCopy returns a new Graph sharing the node and edge stores of g.
// Replacing a store in the copy doesn't affect g, but changing a shared store's contents does.
func (g *Graph) ShallowCopy() *Graph {
	g2 := New()
	for nt, ns := range g.Nodes {
		g2.Nodes[nt] = ns
	}
	for et, es := range g.Edges {
		g2.Edges[et] = es
	}
	return g2
}

// Validate checks the graph invariants: every edge type refers to known node types, every edge endpoint is a
// valid row index of its node type, and edge attributes are aligned with the edges.
func (g *Graph) Validate() error {
	for nt, ns := range g.Nodes {
		if ns.Dim < 0 || ns.Count < 0 {
			return errors.Errorf("node type %q: negative dimension (%d) or count (%d)", nt, ns.Dim, ns.Count)
		}
		if ns.Dim > 0 && len(ns.Features)%ns.Dim != 0 {
			return errors.Errorf("node type %q: features length %d not a multiple of dimension %d",
				nt, len(ns.Features), ns.Dim)
		}
	}
	_, edgeTypes := g.Metadata()
	for _, et := range edgeTypes {
		es := g.Edges[et]
		srcNodes, found := g.Nodes[et.Src]
		if !found {
			return errors.Errorf("edge type %s: unknown source node type %q", et, et.Src)
		}
		dstNodes, found := g.Nodes[et.Dst]
		if !found {
			return errors.Errorf("edge type %s: unknown destination node type %q", et, et.Dst)
		}
		if len(es.Src) != len(es.Dst) {
			return errors.Errorf("edge type %s: %d sources but %d destinations", et, len(es.Src), len(es.Dst))
		}
		if es.Label != nil && len(es.Label) != len(es.Src) {
			return errors.Errorf("edge type %s: %d labels for %d edges", et, len(es.Label), len(es.Src))
		}
		if es.Time != nil && len(es.Time) != len(es.Src) {
			return errors.Errorf("edge type %s: %d timestamps for %d edges", et, len(es.Time), len(es.Src))
		}
		if err := checkIndices(es.Src, srcNodes.NumNodes()); err != nil {
			return errors.WithMessagef(err, "edge type %s sources", et)
		}
		if err := checkIndices(es.Dst, dstNodes.NumNodes()); err != nil {
			return errors.WithMessagef(err, "edge type %s destinations", et)
		}
	}
	return nil
}

func checkIndices(indices []int32, numNodes int) error {
	for i, idx := range indices {
		if idx < 0 || int(idx) >= numNodes {
			return errors.Errorf("edge #%d points to node %d, but there are only %d nodes", i, idx, numNodes)
		}
	}
	return nil
}

// String pretty-prints a summary of the graph.
func (g *Graph) String() string {
	var sb strings.Builder
	nodeTypes, edgeTypes := g.Metadata()
	sb.WriteString("HeteroGraph(\n")
	for _, nt := range nodeTypes {
		ns := g.Nodes[nt]
		if ns.HasFeatures() {
			_, _ = fmt.Fprintf(&sb, "  %s={x=[%d, %d]}\n", nt, ns.NumNodes(), ns.Dim)
		} else {
			_, _ = fmt.Fprintf(&sb, "  %s={num_nodes=%d}\n", nt, ns.NumNodes())
		}
	}
	for _, et := range edgeTypes {
		es := g.Edges[et]
		_, _ = fmt.Fprintf(&sb, "  (%s, %s, %s)={edge_index=[2, %d]", et.Src, et.Rel, et.Dst, es.NumEdges())
		if es.Label != nil {
			_, _ = fmt.Fprintf(&sb, ", edge_label=[%d]", len(es.Label))
		}
		if es.Time != nil {
			_, _ = fmt.Fprintf(&sb, ", time=[%d]", len(es.Time))
		}
		sb.WriteString("}\n")
	}
	sb.WriteString(")")
	return sb.String()
}

// MaxBincountLabel is the largest label accepted by Bincount.
const MaxBincountLabel = 1 << 20

// Bincount returns the number of occurrences of each value in labels, in a slice of length max(labels)+1.
// It returns nil for empty labels and an error for labels that are negative or larger than MaxBincountLabel.
func Bincount(labels []int32) ([]int, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	for i, label := range labels {
		if label < 0 || label > MaxBincountLabel {
			return nil, errors.Errorf("Bincount: label #%d (%d) is out of range [0, %d]", i, label, MaxBincountLabel)
		}
	}
	counts := make([]int, int(slices.Max(labels))+1)
	for _, label := range labels {
		counts[label]++
	}
	return counts, nil
}
