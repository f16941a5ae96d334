// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package linkpred trains and evaluates a gnn link regression model on a heterogeneous graph: it splits
// the target relation's edges, trains full-batch for a fixed number of epochs and reports the loss and the
// RMSE of the clamped predictions on every split after each epoch.
package linkpred

import (
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/movielens-linkpred/gnn"
)

var (
	// ParamNumEpochs is the number of training epochs. Each epoch is one full-batch training step.
	// The default is 300.
	ParamNumEpochs = "num_epochs"

	// ParamValFraction and ParamTestFraction are the fractions of the target edges used for
	// validation and test. The defaults are 0.1 each.
	ParamValFraction  = "val_fraction"
	ParamTestFraction = "test_fraction"

	// ParamSeed seeds the edge split, and also the model initialization if context.ParamInitialSeed
	// ("initializers_seed") is not set.
	// The default is 42.
	ParamSeed = "seed"

	// ParamRatingMin and ParamRatingMax define the range predictions are clamped to during evaluation.
	// The defaults are 0 and 5.
	ParamRatingMin = "rating_min"
	ParamRatingMax = "rating_max"
)

// CreateDefaultContext returns a context with the default hyperparameters set.
// They can be changed with commandline.ParseContextSettings.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		ParamNumEpochs:    300,
		ParamValFraction:  0.1,
		ParamTestFraction: 0.1,
		ParamSeed:         42,
		ParamRatingMin:    0.0,
		ParamRatingMax:    5.0,

		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: 0.01,
		optimizers.ParamAdamEpsilon:  1e-8,

		gnn.ParamHiddenChannels: 32,
		gnn.ParamNumLayers:      2,
	})
	return ctx
}
