// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package movielens

import (
	"encoding/gob"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// cacheVersion is bumped whenever the Dataset layout changes, so stale caches are ignored.
const cacheVersion = 2

type cacheContents struct {
	Version int
	Dataset *Dataset
}

// SaveCache saves the dataset in binary format, for faster access.
func SaveCache(filePath string, ds *Dataset) (err error) {
	var f *os.File
	f, err = os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", filePath)
	}
	defer func() {
		cErr := f.Close()
		if err == nil && cErr != nil {
			err = errors.Wrapf(cErr, "failed to close file %q after writing", filePath)
		}
	}()
	enc := gob.NewEncoder(f)
	if err = enc.Encode(&cacheContents{Version: cacheVersion, Dataset: ds}); err != nil {
		return errors.Wrapf(err, "failed to write dataset to %q", filePath)
	}
	return nil
}

// LoadCache loads a dataset saved with SaveCache. It returns nil (and no error) if the file doesn't exist or
// was saved by an incompatible version.
func LoadCache(filePath string) (*Dataset, error) {
	exists, err := fsutil.FileExists(filePath)
	if err != nil || !exists {
		return nil, err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", filePath)
	}
	defer func() { _ = f.Close() }()
	if info, err := f.Stat(); err == nil {
		klog.V(2).Infof("reading %s from %q", humanize.IBytes(uint64(info.Size())), filePath)
	}
	var contents cacheContents
	if err = gob.NewDecoder(f).Decode(&contents); err != nil {
		return nil, errors.Wrapf(err, "failed to load dataset from %q, you may need to remove it so it can be regenerated",
			filePath)
	}
	if contents.Version != cacheVersion || contents.Dataset == nil || contents.Dataset.Graph == nil {
		klog.Warningf("ignoring cache %q saved with version %d, current version is %d",
			filePath, contents.Version, cacheVersion)
		return nil, nil
	}
	if err = contents.Dataset.Graph.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid dataset cached in %q", filePath)
	}
	return contents.Dataset, nil
}
