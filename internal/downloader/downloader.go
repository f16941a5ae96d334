// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package downloader fetches dataset archives over HTTP, with a progress bar, and extracts them.
package downloader

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// copyBytesBar copies bytes to an io.Writer while displaying a progress bar.
// It requires knowing the contentLength.
type copyBytesBar struct {
	w                             io.Writer
	bar                           *progressbar.ProgressBar
	amountWritten                 int64
	barUnit, numUnits, addedUnits int64
}

func newCopyBytesBar(w io.Writer, contentLength int64) *copyBytesBar {
	bar := &copyBytesBar{w: w, barUnit: 1}
	for contentLength > bar.barUnit*1024*1024 {
		bar.barUnit *= 1024
	}
	bar.numUnits = (contentLength + bar.barUnit - 1) / bar.barUnit
	bar.bar = progressbar.NewOptions64(bar.numUnits,
		progressbar.OptionSetDescription(humanize.IBytes(uint64(contentLength))),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
	return bar
}

// Write implements io.Writer, while updating the progress bar.
func (bar *copyBytesBar) Write(p []byte) (n int, err error) {
	n, err = bar.w.Write(p)
	bar.amountWritten += int64(n)
	toUnits := bar.amountWritten / bar.barUnit
	if toUnits > bar.addedUnits {
		_ = bar.bar.Add64(toUnits - bar.addedUnits)
		bar.addedUnits = toUnits
	}
	return
}

// CopyWithProgressBar is like io.Copy, but displays a progress bar with the amount of data copied.
// If contentLength is unknown (<= 0) it falls back to a plain copy.
func CopyWithProgressBar(dst io.Writer, src io.Reader, contentLength int64) (n int64, err error) {
	if contentLength <= 0 {
		return io.Copy(dst, src)
	}
	bar := newCopyBytesBar(dst, contentLength)
	n, err = io.Copy(bar, src)
	if bar.addedUnits < bar.numUnits {
		_ = bar.bar.Add64(bar.numUnits - bar.addedUnits)
	}
	_ = bar.bar.Close()
	fmt.Println()
	return
}

// Download the file at url and save it to filePath, creating its directory if needed.
// A partially downloaded file is removed on failure.
func Download(url, filePath string, showProgressBar bool) (size int64, err error) {
	filePath, err = fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return 0, err
	}
	if err = os.MkdirAll(filepath.Dir(filePath), 0777); err != nil {
		return 0, errors.Wrapf(err, "failed to create the directory for %q", filePath)
	}
	resp, err := http.Get(url)
	if err != nil {
		return 0, errors.Wrapf(err, "failed downloading %q", url)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("failed downloading %q: HTTP status %s", url, resp.Status)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed creating file %q", filePath)
	}
	if showProgressBar {
		size, err = CopyWithProgressBar(file, resp.Body, resp.ContentLength)
	} else {
		size, err = io.Copy(file, resp.Body)
	}
	if err != nil {
		_ = file.Close()
		_ = os.Remove(filePath)
		return 0, errors.Wrapf(err, "downloading %q to %q", url, filePath)
	}
	if err = file.Close(); err != nil {
		return 0, errors.Wrapf(err, "failed closing %q", filePath)
	}
	klog.V(1).Infof("downloaded %s from %q to %q", humanize.IBytes(uint64(size)), url, filePath)
	return size, nil
}

// DownloadIfMissing downloads the file from url, unless filePath already exists.
//
// If checkHash (SHA-256, hex) is given, the file must match it, downloaded now or not. A file that doesn't
// match is removed.
func DownloadIfMissing(url, filePath, checkHash string) error {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return err
	}
	exists, err := fsutil.FileExists(filePath)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Printf("Downloading %s ...\n", url)
		if _, err = Download(url, filePath, true); err != nil {
			return err
		}
	}
	if checkHash == "" {
		return nil
	}
	return fsutil.ValidateChecksum(filePath, checkHash)
}

// Unzip extracts zipFile under baseDir. Existing files are overwritten.
// Entries that would be written outside baseDir are rejected.
func Unzip(zipFile, baseDir string) error {
	r, err := zip.OpenReader(zipFile)
	if err != nil {
		return errors.Wrapf(err, "failed to open zip file %q", zipFile)
	}
	defer func() { _ = r.Close() }()

	baseDir = filepath.Clean(baseDir)
	var total uint64
	for _, f := range r.File {
		target := filepath.Join(baseDir, f.Name)
		if target != baseDir && !strings.HasPrefix(target, baseDir+string(os.PathSeparator)) {
			return errors.Errorf("zip file %q has entry %q pointing outside of %q", zipFile, f.Name, baseDir)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0777); err != nil {
				return errors.Wrapf(err, "failed to create directory %q", target)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return errors.WithMessagef(err, "while unzipping %q", zipFile)
		}
		total += f.UncompressedSize64
	}
	klog.V(1).Infof("unzipped %d entries (%s) from %q", len(r.File), humanize.IBytes(total), zipFile)
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0777); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", target)
	}
	src, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to open entry %q", f.Name)
	}
	defer func() { _ = src.Close() }()
	dst, err := os.Create(target)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", target)
	}
	if _, err = io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return errors.Wrapf(err, "failed to extract %q", f.Name)
	}
	return errors.Wrapf(dst.Close(), "failed closing %q", target)
}

// DownloadAndUnzipIfMissing downloads zipFile from url, if not there yet, and then unzips it under
// unzipBaseDir, if the targetUnzipDir directory is missing.
//
// If checkHash is given, the zip file is verified against it before unzipping. A zip file that fails to
// unzip is removed, so the next call downloads it again.
func DownloadAndUnzipIfMissing(url, zipFile, unzipBaseDir, targetUnzipDir, checkHash string) error {
	exists, err := fsutil.FileExists(targetUnzipDir)
	if err != nil || exists {
		return err
	}
	if err = DownloadIfMissing(url, zipFile, checkHash); err != nil {
		return err
	}
	if err = Unzip(zipFile, unzipBaseDir); err != nil {
		if rmErr := os.Remove(zipFile); rmErr != nil {
			klog.Warningf("failed to remove %q that couldn't be unzipped: %v", zipFile, rmErr)
		}
		return err
	}
	if exists, err = fsutil.FileExists(targetUnzipDir); err != nil {
		return err
	} else if !exists {
		return errors.Errorf("downloaded from %q and unzipped %q, but didn't get directory %q", url, zipFile, targetUnzipDir)
	}
	return nil
}
