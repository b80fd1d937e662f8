// Copyright (c) 2025 The chkfat authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package check runs a full consistency check of one filesystem: boot
// geometry, allocation table scan, directory tree walk, lost-chain
// sweep and, when repairs were applied, a verification re-run.
package check

import (
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/chkfat/chkfat/internal/boot"
	"github.com/chkfat/chkfat/internal/dir"
	"github.com/chkfat/chkfat/internal/disk"
	"github.com/chkfat/chkfat/internal/fat"
	"github.com/chkfat/chkfat/internal/fs"
	"github.com/chkfat/chkfat/internal/logger"
)

// A repaired table is re-checked once to confirm the repairs left the
// filesystem consistent.
const maxPasses = 2

// Config selects how the check runs and how repair prompts are answered.
type Config struct {
	// ReadOnly reports defects without modifying the image.
	ReadOnly bool

	// AssumeYes answers every repair prompt "yes"; AssumeNo answers
	// "no". AssumeNo still differs from ReadOnly: it opens the image
	// writable and keeps prompting visible.
	AssumeYes bool
	AssumeNo  bool

	// SkipClean ends the check early when the dirty-shutdown probe
	// finds the filesystem marked clean.
	SkipClean bool

	// Offset of the filesystem within the image, in bytes.
	Offset int64

	// Partition selects an MBR partition by its 1-based slot number;
	// the partition's start supersedes Offset. Zero means the
	// filesystem starts at Offset.
	Partition int

	// Ask handles interactive confirmations. Ignored when AssumeYes or
	// AssumeNo is set; when nil, every prompt gets its default answer.
	Ask func(def bool, prompt string) bool

	// Reattach, when set, is offered every lost chain before clearing
	// is proposed.
	Reattach fat.Reattach

	// Progress, when set, receives table-scan progress callbacks.
	Progress func(done, total uint32)

	Log *logger.Logger
}

// Result summarizes a completed check.
type Result struct {
	Geometry *boot.Geometry
	Status   fat.Status
	Stats    dir.Stats

	// Skipped is set when the filesystem was marked clean and
	// SkipClean ended the run before any checking.
	Skipped bool
}

// Run checks the filesystem inside the named image or device.
func Run(afs afero.Fs, path string, cfg Config) (*Result, error) {
	log := cfg.Log
	if log == nil {
		log = logger.New(os.Stderr, logger.InfoLevel)
	}

	f, err := fs.Open(afs, fs.NormalizePath(path), cfg.ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", path, err)
	}
	defer f.Close()

	offset := cfg.Offset
	if cfg.Partition > 0 {
		parts, err := disk.ReadPartitions(f)
		if err != nil {
			return nil, err
		}
		p, err := disk.Find(parts, cfg.Partition)
		if err != nil {
			return nil, err
		}
		if !p.IsFAT() {
			log.Warnf("%s does not look like a FAT partition", p)
		}
		offset = p.Offset
	}

	geom, err := boot.Read(f, offset)
	if err != nil {
		return nil, err
	}
	log.Infof("%s filesystem, %d clusters of %d bytes",
		geom.Type, geom.NumClusters-boot.FirstCluster, geom.ClusterSize())

	if err := boot.ReadFSInfo(f, geom); err != nil {
		// Bad hints are recomputed during the lost-chain sweep.
		log.Warnf("%v", err)
	}

	res := &Result{Geometry: geom}

	dirty, err := fat.CheckDirty(f, geom)
	if err != nil {
		log.Warnf("unable to probe dirty flags: %v", err)
	}
	if dirty {
		log.Warnf("filesystem is marked dirty; it was not unmounted cleanly")
		res.Status |= fat.StatusDirty
	} else if err == nil && cfg.SkipClean {
		log.Infof("filesystem is marked clean, skipping check")
		res.Skipped = true
		return res, nil
	}

	env := &fat.Env{
		ReadOnly: cfg.ReadOnly,
		Log:      log,
		Confirm:  confirmFunc(cfg, log),
		Progress: cfg.Progress,
	}

	for pass := 1; ; pass++ {
		if pass > 1 {
			log.Infof("re-checking after repairs (pass %d)", pass)
		}

		st, stats, err := runPass(f, geom, env, cfg.Reattach)
		res.Status |= st
		res.Stats = stats
		if err != nil {
			return res, err
		}

		if st&(fat.StatusModified|fat.StatusFatal) != fat.StatusModified || pass == maxPasses {
			break
		}
	}
	return res, nil
}

// runPass executes one complete check of the table and directory tree.
func runPass(f fs.File, geom *boot.Geometry, env *fat.Env, reattach fat.Reattach) (fat.Status, dir.Stats, error) {
	tbl, err := fat.Load(f, geom, env)
	if err != nil {
		return fat.StatusFatal, dir.Stats{}, err
	}
	defer tbl.Release()

	st := tbl.Scan()
	if st&fat.StatusFatal != 0 {
		return st, dir.Stats{}, nil
	}

	walker := dir.NewWalker(f, tbl, env)
	wst, err := walker.Walk()
	st |= wst
	if err != nil {
		return st, walker.Stats(), err
	}
	if st&fat.StatusFatal != 0 {
		return st, walker.Stats(), nil
	}

	st |= tbl.CheckLost(f, reattach)

	if st&fat.StatusModified != 0 && !env.ReadOnly {
		if err := tbl.Persist(f); err != nil {
			env.Log.Errorf("unable to write allocation table: %v", err)
			st |= fat.StatusFatal
		}
	}
	return st, walker.Stats(), nil
}

func confirmFunc(cfg Config, log *logger.Logger) func(def bool, prompt string) bool {
	switch {
	case cfg.AssumeYes:
		return func(def bool, prompt string) bool {
			log.Infof("%s? yes", prompt)
			return true
		}
	case cfg.AssumeNo:
		return func(def bool, prompt string) bool {
			log.Infof("%s? no", prompt)
			return false
		}
	default:
		return cfg.Ask
	}
}
