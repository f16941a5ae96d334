// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package linkpred

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/movielens-linkpred/gnn"
	"github.com/gomlx/movielens-linkpred/hetero"
)

// FullBatchDataset yields the whole split as one batch, indefinitely.
//
// It keeps ownership of its tensors, so they are reused on every step.
type FullBatchDataset struct {
	name           string
	inputs, labels []*tensors.Tensor
}

var (
	_ train.Dataset                = (*FullBatchDataset)(nil)
	_ train.DatasetCustomOwnership = (*FullBatchDataset)(nil)
)

// NewFullBatchDataset packs the split into the model input tensors.
func NewFullBatchDataset(split *hetero.LinkSplit, schema *gnn.Schema) (*FullBatchDataset, error) {
	inputs, labels, err := gnn.PackInputs(split, schema)
	if err != nil {
		return nil, err
	}
	return &FullBatchDataset{name: split.Name, inputs: inputs, labels: labels}, nil
}

// Name implements train.Dataset.
func (ds *FullBatchDataset) Name() string { return ds.name }

// Reset implements train.Dataset. It's a no-op, the dataset never ends.
func (ds *FullBatchDataset) Reset() {}

// Yield implements train.Dataset.
func (ds *FullBatchDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	return nil, ds.inputs, ds.labels, nil
}

// IsOwnershipTransferred implements train.DatasetCustomOwnership.
func (ds *FullBatchDataset) IsOwnershipTransferred() bool { return false }

// Finalize frees the tensors immediately, instead of waiting for the garbage collector.
func (ds *FullBatchDataset) Finalize() {
	for _, t := range ds.inputs {
		_ = t.FinalizeAll()
	}
	for _, t := range ds.labels {
		_ = t.FinalizeAll()
	}
}
