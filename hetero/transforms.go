// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package hetero

// ToUndirected returns a new graph where every relation can also be traversed backwards:
//
//   - For a relation (src, rel, dst) with src != dst, a reverse relation (dst, "rev_"+rel, src) is added with
//     the edges flipped. Labels and times are copied over -- remove them from the reverse relation if they are
//     not meant to be a prediction target.
//   - For a relation between nodes of the same type, the reversed copy of each edge is appended, unless that
//     reversed edge already exists.
//
// Relations whose reverse already exists in the graph are left untouched. The node stores are shared
// with g, edge stores that are changed are new.
func ToUndirected(g *Graph) *Graph {
	g2 := g.ShallowCopy()
	_, edgeTypes := g.Metadata()
	for _, et := range edgeTypes {
		es := g.Edges[et]
		if et.Src == et.Dst {
			g2.Edges[et] = symmetrize(es)
			continue
		}
		revType := et.Reverse()
		if _, found := g.Edges[revType]; found {
			continue
		}
		if isReverseRelation(et, g) {
			// et is itself the reverse of an existing relation.
			continue
		}
		g2.Edges[revType] = es.Reversed()
	}
	return g2
}

// isReverseRelation returns whether et was itself synthesized as the reverse of another relation in g.
func isReverseRelation(et EdgeType, g *Graph) bool {
	if len(et.Rel) <= len(ReversePrefix) || et.Rel[:len(ReversePrefix)] != ReversePrefix {
		return false
	}
	forward := EdgeType{Src: et.Dst, Rel: et.Rel[len(ReversePrefix):], Dst: et.Src}
	_, found := g.Edges[forward]
	return found
}

// symmetrize appends the missing reversed edges of a relation between nodes of the same type.
func symmetrize(es *EdgeStore) *EdgeStore {
	type pair struct{ src, dst int32 }
	existing := make(map[pair]bool, es.NumEdges())
	for i := range es.Src {
		existing[pair{es.Src[i], es.Dst[i]}] = true
	}
	positions := make([]int, 0, es.NumEdges())
	for i := range es.Src {
		rev := pair{es.Dst[i], es.Src[i]}
		if existing[rev] {
			continue
		}
		existing[rev] = true
		positions = append(positions, i)
	}
	added := es.Subset(positions).Reversed()
	out := &EdgeStore{
		Src: append(append(make([]int32, 0, es.NumEdges()+len(positions)), es.Src...), added.Src...),
		Dst: append(append(make([]int32, 0, es.NumEdges()+len(positions)), es.Dst...), added.Dst...),
	}
	if es.Label != nil {
		out.Label = append(append(make([]int32, 0, len(out.Src)), es.Label...), added.Label...)
	}
	if es.Time != nil {
		out.Time = append(append(make([]int64, 0, len(out.Src)), es.Time...), added.Time...)
	}
	return out
}
