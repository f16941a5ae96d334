// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package movielens

import (
	"github.com/gomlx/movielens-linkpred/hetero"
	"github.com/pkg/errors"
)

// Prepare the graph for link prediction of ratings:
//
//   - Users get one-hot identity features, since they have no native ones.
//   - The reverse relation RevRates is added, so movies also receive messages from users.
//   - The labels of RevRates are removed: only Rates is a prediction target.
//
// The input graph is not modified, but node stores other than users are shared with it.
func Prepare(g *hetero.Graph) (*hetero.Graph, error) {
	if _, found := g.Edges[Rates]; !found {
		return nil, errors.Errorf("graph has no %s relation", Rates)
	}
	users, found := g.Nodes[UserNode]
	if !found {
		return nil, errors.Errorf("graph has no %q nodes", UserNode)
	}
	g = g.ShallowCopy()
	numUsers := users.NumNodes()
	userFeatures := &hetero.NodeStore{}
	if numUsers > 0 {
		if err := userFeatures.SetFeatures(hetero.IdentityFeatures(numUsers), numUsers); err != nil {
			return nil, err
		}
	}
	g.Nodes[UserNode] = userFeatures

	g = hetero.ToUndirected(g)
	rev := *g.Edges[RevRates]
	rev.Label = nil
	g.Edges[RevRates] = &rev
	if err := g.Validate(); err != nil {
		return nil, errors.WithMessage(err, "prepared graph is invalid")
	}
	return g, nil
}
