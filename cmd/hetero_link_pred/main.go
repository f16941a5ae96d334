// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// hetero_link_pred trains a heterogeneous GraphSAGE model to predict the ratings users give to movies,
// on the MovieLens "latest-small" dataset.
//
// Hyperparameters can be changed with -set, e.g.: -set="num_epochs=100;hidden_channels=64".
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/movielens-linkpred/linkpred"
	"github.com/gomlx/movielens-linkpred/movielens"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagDataDir         = flag.String("data", "~/work/movielens", "Directory to cache downloaded and generated dataset files.")
	flagForceDownload   = flag.Bool("force_download", false, "Force re-download and re-parsing of the MovieLens files.")
	flagUseWeightedLoss = flag.Bool("use_weighted_loss", false, "Whether to use weighted MSE loss, to rebalance the rating classes.")
	flagTitleModel      = flag.String("title_model", movielens.DefaultTitleModel,
		"HuggingFace sentence embedding model used to embed movie titles as movie features. If empty, only genres are used.")
	flagZipChecksum = flag.String("zip_checksum", movielens.ZipChecksum, "SHA-256 the downloaded MovieLens zip file must match, if not empty.")
)

func main() {
	ctx := linkpred.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := check1(commandline.ParseContextSettings(ctx, *settings))
	if len(paramsSet) > 0 {
		fmt.Println(commandline.SprintModifiedContextSettings(ctx, paramsSet))
	}

	backend := check1(backends.New())
	klog.Infof("backend: %s", backend.Description())

	fmt.Printf("Loading data ... ")
	start := time.Now()
	movielens.ZipChecksum = *flagZipChecksum
	var embedder movielens.TitleEmbedder
	if *flagTitleModel != "" {
		embedder = movielens.NewSentenceEmbedder(backend, *flagTitleModel)
	}
	ds := check1(movielens.Load(*flagDataDir, *flagForceDownload, embedder))
	fmt.Printf("elapsed: %s\n", time.Since(start))
	g := check1(movielens.Prepare(ds.Graph))
	fmt.Println(g)

	_, err := linkpred.Train(backend, ctx, g, linkpred.Config{
		Target:          movielens.Rates,
		RevTarget:       movielens.RevRates,
		UseWeightedLoss: *flagUseWeightedLoss,
	})
	check(err)
}

// check reports and exits on error.
func check(err error) {
	if err == nil {
		return
	}
	klog.Fatalf("Fatal error: %+v", err)
}

// check1 reports and exits on error. Otherwise returns the value passed.
func check1[T any](v T, err error) T {
	check(err)
	return v
}
