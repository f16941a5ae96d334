// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gnn

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
)

// WeightedMSELoss returns a loss function that computes the mean over edges of `weights[target]*(pred-target)^2`,
// where the integer targets are given in labels[0] and the predictions in predictions[0], both `[num_pairs]`.
//
// If weights is empty, it is the plain mean squared error.
func WeightedMSELoss(weights []float32) losses.LossFn {
	return func(labels, predictions []*Node) *Node {
		if len(labels) != 1 || len(predictions) != 1 {
			exceptions.Panicf("WeightedMSELoss expects one labels and one predictions tensor, got %d and %d",
				len(labels), len(predictions))
		}
		pred, target := predictions[0], labels[0]
		sqErr := Square(Sub(pred, ConvertDType(target, pred.DType())))
		if len(weights) > 0 {
			g := pred.Graph()
			idx := InsertAxes(ConvertDType(target, dtypes.Int32), -1)
			edgeWeights := Gather(Const(g, weights), idx)
			sqErr = Mul(ConvertDType(edgeWeights, pred.DType()), sqErr)
		}
		return ReduceAllMean(sqErr)
	}
}

// ClampedRMSE clips the predictions to [minValue, maxValue] and returns the root mean squared error
// against the targets, along with the clipped predictions.
func ClampedRMSE(predictions, targets *Node, minValue, maxValue float64) (rmse, clipped *Node) {
	clipped = ClipScalar(predictions, minValue, maxValue)
	rmse = Sqrt(ReduceAllMean(Square(Sub(clipped, ConvertDType(targets, clipped.DType())))))
	return
}
