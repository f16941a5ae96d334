// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package linkpred

import (
	"slices"

	"github.com/gomlx/movielens-linkpred/hetero"
	"github.com/pkg/errors"
)

// LossWeights returns per-label weights that rebalance the loss: `weights[i] = max(counts)/counts[i]`, where
// counts is the histogram of labels. The most frequent label gets weight 1, rarer labels get larger weights.
//
// Labels that never occur get weight 0.
func LossWeights(labels []int32) ([]float32, error) {
	counts, err := hetero.Bincount(labels)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, errors.New("LossWeights: no labels given")
	}
	maxCount := float32(slices.Max(counts))
	weights := make([]float32, len(counts))
	for label, count := range counts {
		if count > 0 {
			weights[label] = maxCount / float32(count)
		}
	}
	return weights, nil
}
