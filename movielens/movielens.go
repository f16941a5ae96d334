// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package movielens downloads the MovieLens "latest-small" dataset and converts it to a heterogeneous
// graph of users and movies, connected by their ratings.
//
// See https://grouplens.org/datasets/movielens/ for details on the dataset.
package movielens

import (
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/movielens-linkpred/hetero"
	"github.com/gomlx/movielens-linkpred/internal/downloader"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	ZipURL  = "https://files.grouplens.org/datasets/movielens/ml-latest-small.zip"
	ZipFile = "ml-latest-small.zip"

	// ZipChecksum is the SHA-256 (hex) the downloaded ZipFile must match. If empty, the download is not
	// verified beyond the per-entry CRC-32 checks done while unzipping.
	ZipChecksum = ""

	// Subdir where the zip file is extracted, under the data directory.
	Subdir = "ml-latest-small"

	MoviesFile  = "movies.csv"
	RatingsFile = "ratings.csv"

	// CacheFile holds the parsed graph in binary form, under the data directory.
	CacheFile = "movielens_small.bin"
)

// Node types.
const (
	UserNode  hetero.NodeType = "user"
	MovieNode hetero.NodeType = "movie"
)

var (
	// Rates is the relation of users rating movies. Its edge labels are the ratings, truncated to integers.
	Rates = hetero.EdgeType{Src: UserNode, Rel: "rates", Dst: MovieNode}

	// RevRates is the reverse relation of Rates, added by Prepare.
	RevRates = Rates.Reverse()
)

// Dataset is the parsed MovieLens data.
type Dataset struct {
	// Graph with the "user" and "movie" nodes and the Rates relation. Users have no features,
	// movies have the title embedding (if any) followed by multi-hot genre features.
	Graph *hetero.Graph

	// TitleModel names the model used to embed the movie titles, and TitleDim is the embedding size.
	// They are empty if titles were not embedded.
	TitleModel string
	TitleDim   int

	// Genres are the names of the genre feature columns, sorted. They follow the TitleDim embedding columns.
	Genres []string

	// MovieIDs maps each movie node index to its MovieLens movieId, and UserIDs does the same for users.
	MovieIDs, UserIDs []int
}

// Load the MovieLens dataset from dataDir, downloading it first if needed. Movie titles are embedded with
// embedder, if not nil.
//
// The parsed dataset is cached in dataDir for faster start up, and it is parsed again if it was cached with
// a different title embedding model. If force is true, the CSV files are downloaded and parsed again.
func Load(dataDir string, force bool, embedder TitleEmbedder) (*Dataset, error) {
	dataDir, err := fsutil.ReplaceTildeInDir(dataDir)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(dataDir, 0777); err != nil {
		return nil, errors.Wrapf(err, "failed to create data directory %q", dataDir)
	}
	cachePath := filepath.Join(dataDir, CacheFile)
	if !force {
		ds, err := LoadCache(cachePath)
		if err != nil {
			return nil, err
		}
		if ds != nil && ds.TitleModel == embedderName(embedder) {
			klog.V(1).Infof("loaded MovieLens from %q", cachePath)
			return ds, nil
		}
		if ds != nil {
			klog.Infof("cache %q has title model %q, parsing again for %q", cachePath, ds.TitleModel, embedderName(embedder))
		}
	}

	if err = download(dataDir, force); err != nil {
		return nil, err
	}
	ds, err := ParseFiles(filepath.Join(dataDir, Subdir), embedder)
	if err != nil {
		return nil, err
	}
	if err = SaveCache(cachePath, ds); err != nil {
		return nil, err
	}
	klog.V(1).Infof("saved parsed MovieLens to %q", cachePath)
	return ds, nil
}

// download fetches and extracts the zip file, unless already there. If force is set, previous downloads are
// removed first.
func download(dataDir string, force bool) error {
	zipPath := filepath.Join(dataDir, ZipFile)
	targetDir := filepath.Join(dataDir, Subdir)
	if force {
		for _, p := range []string{zipPath, targetDir} {
			if err := os.RemoveAll(p); err != nil {
				return errors.Wrapf(err, "failed to remove previous download %q", p)
			}
		}
	}
	return downloader.DownloadAndUnzipIfMissing(ZipURL, zipPath, dataDir, targetDir, ZipChecksum)
}

// ParseFiles parses the movies and ratings CSV files from the given directory. See Parse.
func ParseFiles(dir string, embedder TitleEmbedder) (*Dataset, error) {
	moviesPath := filepath.Join(dir, MoviesFile)
	moviesF, err := os.Open(moviesPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", moviesPath)
	}
	defer func() { _ = moviesF.Close() }()
	ratingsPath := filepath.Join(dir, RatingsFile)
	ratingsF, err := os.Open(ratingsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", ratingsPath)
	}
	defer func() { _ = ratingsF.Close() }()
	ds, err := Parse(moviesF, ratingsF, embedder)
	if err != nil {
		return nil, errors.WithMessagef(err, "while parsing MovieLens files in %q", dir)
	}
	return ds, nil
}

// embedderName returns the name of the embedder, or "" if it is nil.
func embedderName(embedder TitleEmbedder) string {
	if embedder == nil {
		return ""
	}
	return embedder.Name()
}
