// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package movielens

import (
	"slices"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/gomlx/go-huggingface/tokenizers"
	"github.com/gomlx/go-huggingface/tokenizers/api"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/onnx-gomlx/onnx/parser"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TitleEmbedder converts movie titles to fixed-size vectors.
type TitleEmbedder interface {
	// Name identifies the embedding model. It is stored with the parsed dataset.
	Name() string

	// Embed returns the embeddings of the titles, row-major, one row of dim values per title.
	Embed(titles []string) (embeddings []float32, dim int, err error)
}

// DefaultTitleModel is the HuggingFace sentence embedding model used for movie titles.
const DefaultTitleModel = "sentence-transformers/all-MiniLM-L6-v2"

var (
	// SentenceModelFile is the ONNX model file within the HuggingFace repository.
	SentenceModelFile = "onnx/model.onnx"

	// SentenceOutput is the name of the ONNX output with the per-token embeddings.
	SentenceOutput = "last_hidden_state"
)

// SentenceEmbedder embeds sentences with a HuggingFace sentence-transformers ONNX model: the per-token
// embeddings are mean-pooled over the sentence tokens and L2-normalized.
//
// The model is only downloaded and loaded on the first call to Embed.
type SentenceEmbedder struct {
	backend   backends.Backend
	modelName string

	// MaxLength is the maximum number of tokens per sentence, including the special tokens.
	// Longer sentences are truncated.
	MaxLength int

	// BatchSize is the number of sentences embedded at once.
	BatchSize int

	tok                 tokenizers.Tokenizer
	exec                *context.Exec
	clsID, sepID, padID int
}

var _ TitleEmbedder = (*SentenceEmbedder)(nil)

// NewSentenceEmbedder creates a SentenceEmbedder for the given HuggingFace model, e.g. DefaultTitleModel.
func NewSentenceEmbedder(backend backends.Backend, modelName string) *SentenceEmbedder {
	return &SentenceEmbedder{
		backend:   backend,
		modelName: modelName,
		MaxLength: 128,
		BatchSize: 64,
	}
}

// Name implements TitleEmbedder.
func (e *SentenceEmbedder) Name() string { return e.modelName }

// load downloads the model and tokenizer and compiles the embedding graph, if not done yet.
func (e *SentenceEmbedder) load() error {
	if e.exec != nil {
		return nil
	}
	klog.Infof("loading sentence embedding model %q", e.modelName)
	repo := hub.New(e.modelName).WithProgressBar(true)
	if err := repo.DownloadInfo(false); err != nil {
		return errors.WithMessagef(err, "failed to get info of HuggingFace repository %q", e.modelName)
	}
	onnxPath, err := repo.DownloadFile(SentenceModelFile)
	if err != nil {
		return errors.WithMessagef(err, "failed to download %q from %q", SentenceModelFile, e.modelName)
	}
	tok, err := tokenizers.New(repo)
	if err != nil {
		return errors.WithMessagef(err, "failed to create tokenizer for %q", e.modelName)
	}
	model, err := parser.ParseFile(onnxPath)
	if err != nil {
		return errors.WithMessagef(err, "failed to read ONNX model %q", onnxPath)
	}
	ctx := context.New()
	if err = model.VariablesToContext(ctx); err != nil {
		return errors.WithMessagef(err, "failed to load variables of %q", onnxPath)
	}

	e.clsID, err = tok.SpecialTokenID(api.TokClassification)
	if err != nil {
		e.clsID = 101
	}
	e.sepID, err = tok.SpecialTokenID(api.TokEndOfSentence)
	if err != nil {
		e.sepID = 102
	}
	e.padID, err = tok.SpecialTokenID(api.TokPad)
	if err != nil {
		e.padID = 0
	}

	inputNames, _ := model.Inputs()
	withTokenTypeIDs := slices.Contains(inputNames, "token_type_ids")
	exec, err := context.NewExec(e.backend, ctx, func(ctx *context.Context, inputIDs, attentionMask *Node) *Node {
		g := inputIDs.Graph()
		feeds := map[string]*Node{
			"input_ids":      inputIDs,
			"attention_mask": attentionMask,
		}
		if withTokenTypeIDs {
			feeds["token_type_ids"] = ZerosLike(inputIDs)
		}
		hidden := model.CallGraph(ctx, g, feeds, SentenceOutput)[0]
		return MeanPoolAndNormalize(hidden, attentionMask)
	})
	if err != nil {
		return errors.WithMessagef(err, "failed to create executor for %q", e.modelName)
	}
	e.tok = tok
	e.exec = exec
	return nil
}

// Embed implements TitleEmbedder.
func (e *SentenceEmbedder) Embed(titles []string) (embeddings []float32, dim int, err error) {
	if len(titles) == 0 {
		return nil, 0, nil
	}
	if err = e.load(); err != nil {
		return nil, 0, err
	}
	for start := 0; start < len(titles); start += e.BatchSize {
		end := min(start+e.BatchSize, len(titles))
		tokens := make([][]int, 0, e.BatchSize)
		for _, title := range titles[start:end] {
			tokens = append(tokens, e.tok.Encode(title))
		}
		ids, mask, seqLen := padTokens(tokens, e.BatchSize, e.MaxLength, e.clsID, e.sepID, e.padID)
		var outputs []*tensors.Tensor
		outputs, err = e.exec.Exec(
			tensors.FromFlatDataAndDimensions(ids, e.BatchSize, seqLen),
			tensors.FromFlatDataAndDimensions(mask, e.BatchSize, seqLen))
		if err != nil {
			return nil, 0, errors.WithMessagef(err, "failed to embed titles %d to %d", start, end)
		}
		dim = outputs[0].Shape().Dimensions[1]
		if embeddings == nil {
			embeddings = make([]float32, 0, len(titles)*dim)
		}
		batch := tensors.MustCopyFlatData[float32](outputs[0])
		embeddings = append(embeddings, batch[:(end-start)*dim]...)
		_ = outputs[0].FinalizeAll()
		klog.V(2).Infof("embedded %d of %d titles", end, len(titles))
	}
	return embeddings, dim, nil
}

// seqLenBucket is the granularity of the padded sequence length, so only a few graphs get compiled.
const seqLenBucket = 16

// padTokens builds the `[batchSize, seqLen]` input ids and attention mask of the tokenized sentences:
// each one is wrapped as `[CLS] tokens [SEP]`, truncated to maxLength and padded with padID.
// Rows past len(tokens) are all padding.
//
// seqLen is the longest wrapped sentence rounded up to a multiple of seqLenBucket, at most maxLength.
func padTokens(tokens [][]int, batchSize, maxLength, clsID, sepID, padID int) (ids, mask []int64, seqLen int) {
	longest := 0
	for _, sentence := range tokens {
		longest = max(longest, min(len(sentence)+2, maxLength))
	}
	seqLen = min((longest+seqLenBucket-1)/seqLenBucket*seqLenBucket, maxLength)
	seqLen = max(seqLen, 1)
	ids = make([]int64, batchSize*seqLen)
	mask = make([]int64, batchSize*seqLen)
	for i := range ids {
		ids[i] = int64(padID)
	}
	for row, sentence := range tokens {
		if len(sentence)+2 > maxLength {
			sentence = sentence[:max(maxLength-2, 0)]
		}
		wrapped := make([]int, 0, len(sentence)+2)
		wrapped = append(wrapped, clsID)
		wrapped = append(wrapped, sentence...)
		wrapped = append(wrapped, sepID)
		wrapped = wrapped[:min(len(wrapped), seqLen)]
		for col, id := range wrapped {
			ids[row*seqLen+col] = int64(id)
			mask[row*seqLen+col] = 1
		}
	}
	return
}

// MeanPoolAndNormalize averages the token embeddings hidden (`[batch, seq, dim]`) over the positions where
// mask (`[batch, seq]`) is not zero, and L2-normalizes the result to unit length. Rows without tokens are zero.
func MeanPoolAndNormalize(hidden, mask *Node) *Node {
	weights := InsertAxes(ConvertDType(mask, hidden.DType()), -1)
	sum := ReduceSum(Mul(hidden, weights), 1)
	count := ReduceSum(weights, 1)
	mean := Div(sum, MaxScalar(count, 1e-9))
	return L2Normalize(mean, -1)
}
