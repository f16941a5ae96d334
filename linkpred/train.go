// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package linkpred

import (
	"fmt"
	"io"
	"os"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
	"github.com/gomlx/movielens-linkpred/gnn"
	"github.com/gomlx/movielens-linkpred/hetero"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config holds the settings of Train that are not model hyperparameters.
type Config struct {
	// Target is the relation whose edge labels are predicted, and RevTarget its reverse relation (optional).
	Target, RevTarget hetero.EdgeType

	// UseWeightedLoss rebalances the loss with LossWeights computed on the training labels.
	UseWeightedLoss bool

	// Out is where the per-epoch report is written. Defaults to os.Stdout.
	Out io.Writer
}

// EpochResult holds the training loss and the RMSE on each split after one epoch.
type EpochResult struct {
	Epoch            int
	Loss             float32
	Train, Val, Test float64
}

// String implements fmt.Stringer, in the format of the per-epoch report.
func (r EpochResult) String() string {
	return fmt.Sprintf("Epoch: %03d, Loss: %.4f, Train: %.4f, Val: %.4f, Test: %.4f",
		r.Epoch, r.Loss, r.Train, r.Val, r.Test)
}

// seedInitializers makes the variable initialization deterministic with the given seed, unless
// context.ParamInitialSeed was explicitly set.
func seedInitializers(ctx *context.Context, seed int64) {
	if _, found := ctx.GetParam(context.ParamInitialSeed); found {
		return
	}
	ctx.SetParam(context.ParamInitialSeed, seed)
}

// Train splits the target relation of g, trains the model with the hyperparameters in ctx and returns
// the results of each epoch, which are also printed to cfg.Out as training progresses.
//
// The model variables are stored in ctx, which must not yet hold them.
func Train(backend backends.Backend, ctx *context.Context, g *hetero.Graph, cfg Config) ([]EpochResult, error) {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	numEpochs := context.GetParamOr(ctx, ParamNumEpochs, 300)
	seed := context.GetParamOr(ctx, ParamSeed, 42)
	ratingMin := context.GetParamOr(ctx, ParamRatingMin, 0.0)
	ratingMax := context.GetParamOr(ctx, ParamRatingMax, 5.0)

	trainSplit, valSplit, testSplit, err := hetero.RandomLinkSplit(g, hetero.LinkSplitConfig{
		EdgeType:     cfg.Target,
		RevEdgeType:  cfg.RevTarget,
		ValFraction:  context.GetParamOr(ctx, ParamValFraction, 0.1),
		TestFraction: context.GetParamOr(ctx, ParamTestFraction, 0.1),
		Seed:         uint64(seed),
	})
	if err != nil {
		return nil, err
	}
	if trainSplit.NumLabels() == 0 {
		return nil, errors.Errorf("no edges of %s left for training", cfg.Target)
	}
	for _, split := range []*hetero.LinkSplit{trainSplit, valSplit, testSplit} {
		klog.V(1).Infof("%s split: %d supervision edges, graph %s", split.Name, split.NumLabels(), split.Graph)
	}

	schema, err := gnn.NewSchema(trainSplit.Graph, cfg.Target)
	if err != nil {
		return nil, err
	}
	seedInitializers(ctx, int64(seed))
	numParams, err := gnn.Materialize(backend, ctx, schema, trainSplit)
	if err != nil {
		return nil, err
	}
	klog.Infof("model has %d parameters", numParams)

	var weights []float32
	if cfg.UseWeightedLoss {
		weights, err = LossWeights(trainSplit.Labels)
		if err != nil {
			return nil, err
		}
		klog.Infof("loss weights per label: %v", weights)
	}

	ds, err := NewFullBatchDataset(trainSplit, schema)
	if err != nil {
		return nil, err
	}
	defer ds.Finalize()
	evaluator, err := NewEvaluator(backend, ctx, schema, ratingMin, ratingMax, trainSplit, valSplit, testSplit)
	if err != nil {
		return nil, err
	}
	defer evaluator.Finalize()

	var trainer *train.Trainer
	err = exceptions.TryCatch[error](func() {
		trainer = train.NewTrainer(backend, ctx.Reuse(), gnn.ModelGraph(schema),
			gnn.WeightedMSELoss(weights),
			optimizers.FromContext(ctx),
			nil, nil) // trainMetrics, evalMetrics
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create trainer")
	}
	loop := train.NewLoop(trainer)
	results := make([]EpochResult, 0, numEpochs)
	loop.OnStep("evaluate", 0, func(loop *train.Loop, metrics []*tensors.Tensor) error {
		rmses, err := evaluator.Eval()
		if err != nil {
			return err
		}
		result := EpochResult{
			Epoch: loop.LoopStep - loop.StartStep + 1,
			Loss:  tensors.ToScalar[float32](metrics[0]),
			Train: rmses[0],
			Val:   rmses[1],
			Test:  rmses[2],
		}
		results = append(results, result)
		_, err = fmt.Fprintln(out, result)
		return err
	})
	if _, err = loop.RunSteps(ds, numEpochs); err != nil {
		return results, errors.WithMessagef(err, "training failed after %d epochs", len(results))
	}
	klog.V(1).Infof("median train step duration: %s", loop.MedianTrainStepDuration())
	return results, nil
}
