// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package movielens

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/movielens-linkpred/hetero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMoviesCSV = `movieId,title,genres
1,Toy Story (1995),Adventure|Animation|Children|Comedy|Fantasy
2,Jumanji (1995),Adventure|Children|Fantasy
6,"Heat, The Sequel (1995)",Action|Crime|Thriller
9,Unknown Film (2020),(no genres listed)
`
	testRatingsCSV = `userId,movieId,rating,timestamp
7,1,4.0,964982703
7,6,3.5,964981247
3,2,0.5,964982224
3,9,5.0,964983815
7,2,2.0,964982931
`
)

func TestParse(t *testing.T) {
	ds, err := Parse(strings.NewReader(testMoviesCSV), strings.NewReader(testRatingsCSV), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 6, 9}, ds.MovieIDs)
	assert.Equal(t, []int{7, 3}, ds.UserIDs)
	assert.Equal(t, []string{"(no genres listed)", "Action", "Adventure", "Animation", "Children", "Comedy",
		"Crime", "Fantasy", "Thriller"}, ds.Genres)

	g := ds.Graph
	movies := g.Nodes[MovieNode]
	require.Equal(t, 4, movies.NumNodes())
	require.Equal(t, 9, movies.Dim)
	assert.Equal(t, []float32{0, 0, 1, 0, 1, 0, 0, 1, 0}, movies.Row(1)) // Jumanji
	assert.Equal(t, []float32{0, 1, 0, 0, 0, 0, 1, 0, 1}, movies.Row(2)) // Heat
	assert.Equal(t, []float32{1, 0, 0, 0, 0, 0, 0, 0, 0}, movies.Row(3))

	users := g.Nodes[UserNode]
	assert.False(t, users.HasFeatures())
	assert.Equal(t, 2, users.NumNodes())

	es := g.Edges[Rates]
	assert.Equal(t, []int32{0, 0, 1, 1, 0}, es.Src)
	assert.Equal(t, []int32{0, 2, 1, 3, 1}, es.Dst)
	assert.Equal(t, []int32{4, 3, 0, 5, 2}, es.Label)
	assert.Equal(t, int64(964982703), es.Time[0])
}

func TestParseErrors(t *testing.T) {
	// Rating of an unknown movie.
	_, err := Parse(strings.NewReader(testMoviesCSV), strings.NewReader("userId,movieId,rating,timestamp\n1,5,3.0,1\n"), nil)
	require.Error(t, err)

	// Missing column.
	_, err = Parse(strings.NewReader(testMoviesCSV), strings.NewReader("userId,movieId,timestamp\n1,1,1\n"), nil)
	require.Error(t, err)

	// Duplicate movie.
	_, err = Parse(strings.NewReader("movieId,title,genres\n1,A,Drama\n1,B,Drama\n"),
		strings.NewReader(testRatingsCSV), nil)
	require.Error(t, err)
}

func TestPrepare(t *testing.T) {
	ds, err := Parse(strings.NewReader(testMoviesCSV), strings.NewReader(testRatingsCSV), nil)
	require.NoError(t, err)
	g, err := Prepare(ds.Graph)
	require.NoError(t, err)

	users := g.Nodes[UserNode]
	require.True(t, users.HasFeatures())
	assert.Equal(t, 2, users.NumNodes())
	assert.Equal(t, hetero.IdentityFeatures(2), users.Features)
	assert.Zero(t, users.Count)

	_, edgeTypes := g.Metadata()
	assert.Equal(t, []hetero.EdgeType{RevRates, Rates}, edgeTypes)
	rev := g.Edges[RevRates]
	assert.Nil(t, rev.Label)
	assert.Equal(t, g.Edges[Rates].Dst, rev.Src)
	assert.Equal(t, g.Edges[Rates].Src, rev.Dst)
	assert.NotNil(t, g.Edges[Rates].Label)

	// Input graph is unchanged.
	assert.False(t, ds.Graph.Nodes[UserNode].HasFeatures())
	assert.Len(t, ds.Graph.Edges, 1)

	_, err = Prepare(hetero.New())
	require.Error(t, err)
}

func TestLoadAndCache(t *testing.T) {
	dataDir := t.TempDir()
	csvDir := filepath.Join(dataDir, Subdir)
	require.NoError(t, os.MkdirAll(csvDir, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(csvDir, MoviesFile), []byte(testMoviesCSV), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(csvDir, RatingsFile), []byte(testRatingsCSV), 0644))

	// Already extracted: no download needed.
	ds, err := Load(dataDir, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, ds.Graph.Edges[Rates].NumEdges())
	require.FileExists(t, filepath.Join(dataDir, CacheFile))

	// Second load comes from the cache, even without the CSV files.
	require.NoError(t, os.RemoveAll(csvDir))
	cached, err := Load(dataDir, false, nil)
	require.NoError(t, err)
	assert.Equal(t, ds.Genres, cached.Genres)
	assert.Equal(t, ds.UserIDs, cached.UserIDs)
	assert.Equal(t, ds.Graph.Edges[Rates], cached.Graph.Edges[Rates])
	assert.Equal(t, ds.Graph.Nodes[MovieNode], cached.Graph.Nodes[MovieNode])
	assert.Equal(t, ds.Graph.Nodes[UserNode].NumNodes(), cached.Graph.Nodes[UserNode].NumNodes())
}

func TestLoadCacheMissing(t *testing.T) {
	ds, err := LoadCache(filepath.Join(t.TempDir(), "missing.bin"))
	require.NoError(t, err)
	assert.Nil(t, ds)
}

// lengthEmbedder embeds each title as [number of bytes, 1].
type lengthEmbedder struct {
	numCalls int
}

func (e *lengthEmbedder) Name() string { return "title-length" }

func (e *lengthEmbedder) Embed(titles []string) ([]float32, int, error) {
	e.numCalls++
	embeddings := make([]float32, 0, 2*len(titles))
	for _, title := range titles {
		embeddings = append(embeddings, float32(len(title)), 1)
	}
	return embeddings, 2, nil
}

// shortEmbedder returns one embedding too few.
type shortEmbedder struct{}

func (shortEmbedder) Name() string { return "short" }

func (shortEmbedder) Embed(titles []string) ([]float32, int, error) {
	return make([]float32, len(titles)-1), 1, nil
}

func TestParseWithTitleEmbeddings(t *testing.T) {
	embedder := &lengthEmbedder{}
	ds, err := Parse(strings.NewReader(testMoviesCSV), strings.NewReader(testRatingsCSV), embedder)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.numCalls)
	assert.Equal(t, "title-length", ds.TitleModel)
	assert.Equal(t, 2, ds.TitleDim)
	assert.Len(t, ds.Genres, 9)

	movies := ds.Graph.Nodes[MovieNode]
	require.Equal(t, 4, movies.NumNodes())
	require.Equal(t, 2+9, movies.Dim)
	// Title embedding first, then genres.
	assert.Equal(t, []float32{14, 1, 0, 0, 1, 0, 1, 0, 0, 1, 0}, movies.Row(1)) // Jumanji (1995)
	assert.Equal(t, []float32{23, 1, 0, 1, 0, 0, 0, 0, 1, 0, 1}, movies.Row(2)) // Heat, The Sequel (1995)
	assert.Equal(t, []float32{float32(len("Unknown Film (2020)")), 1, 1, 0, 0, 0, 0, 0, 0, 0, 0}, movies.Row(3))

	_, err = Parse(strings.NewReader(testMoviesCSV), strings.NewReader(testRatingsCSV), shortEmbedder{})
	require.Error(t, err)
}

func TestLoadWithTitleEmbeddings(t *testing.T) {
	dataDir := t.TempDir()
	csvDir := filepath.Join(dataDir, Subdir)
	require.NoError(t, os.MkdirAll(csvDir, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(csvDir, MoviesFile), []byte(testMoviesCSV), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(csvDir, RatingsFile), []byte(testRatingsCSV), 0644))

	embedder := &lengthEmbedder{}
	ds, err := Load(dataDir, false, embedder)
	require.NoError(t, err)
	assert.Equal(t, 11, ds.Graph.Nodes[MovieNode].Dim)
	assert.Equal(t, 1, embedder.numCalls)

	// Same model: embeddings come from the cache.
	cached, err := Load(dataDir, false, embedder)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.numCalls)
	assert.Equal(t, ds.TitleModel, cached.TitleModel)
	assert.Equal(t, ds.TitleDim, cached.TitleDim)
	assert.Equal(t, ds.Graph.Nodes[MovieNode], cached.Graph.Nodes[MovieNode])

	// Without embeddings the cache doesn't match, and the files are parsed again.
	plain, err := Load(dataDir, false, nil)
	require.NoError(t, err)
	assert.Empty(t, plain.TitleModel)
	assert.Equal(t, 9, plain.Graph.Nodes[MovieNode].Dim)

	// And back.
	ds, err = Load(dataDir, false, embedder)
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.numCalls)
	assert.Equal(t, 11, ds.Graph.Nodes[MovieNode].Dim)
}

func TestPadTokens(t *testing.T) {
	const cls, sep, pad = 101, 102, 0
	ids, mask, seqLen := padTokens([][]int{{7, 8}, {9}}, 3, 128, cls, sep, pad)
	require.Equal(t, 16, seqLen)
	require.Len(t, ids, 3*16)
	assert.Equal(t, []int64{cls, 7, 8, sep, pad}, ids[:5])
	assert.Equal(t, []int64{1, 1, 1, 1, 0}, mask[:5])
	assert.Equal(t, []int64{cls, 9, sep, pad}, ids[16:20])
	assert.Equal(t, []int64{1, 1, 1, 0}, mask[16:20])
	// Padding row.
	assert.Equal(t, make([]int64, 16), mask[32:])

	// Truncation keeps [CLS] and [SEP].
	long := make([]int, 20)
	for i := range long {
		long[i] = i + 1
	}
	ids, mask, seqLen = padTokens([][]int{long}, 1, 8, cls, sep, pad)
	require.Equal(t, 8, seqLen)
	assert.Equal(t, []int64{cls, 1, 2, 3, 4, 5, 6, sep}, ids)
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 1, 1, 1}, mask)
}

func TestMeanPoolAndNormalize(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	hidden := [][][]float32{
		{{3, 0}, {1, 4}, {100, 100}},
		{{0, -5}, {7, 7}, {7, 7}},
		{{1, 1}, {1, 1}, {1, 1}},
	}
	mask := [][]int64{{1, 1, 0}, {1, 0, 0}, {0, 0, 0}}
	output, err := ExecOnce(backend, MeanPoolAndNormalize, hidden, mask)
	require.NoError(t, err)
	got := tensors.MustCopyFlatData[float32](output)
	want := []float32{0.70710677, 0.70710677, 0, -1, 0, 0}
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "element %d", i)
	}
}
