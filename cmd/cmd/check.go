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
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/chkfat/chkfat/internal/check"
	"github.com/chkfat/chkfat/internal/fat"
	"github.com/chkfat/chkfat/internal/logger"
	"github.com/chkfat/chkfat/pkg/pbar"
	"github.com/chkfat/chkfat/pkg/util/format"
)

func DefineCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "check <device>",
		Short:        "Check an image file or disk for allocation errors",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunCheck,
	}

	cmd.Flags().BoolP("dry-run", "n", false, "report defects without modifying the image")
	cmd.Flags().BoolP("yes", "y", false, "answer yes to every repair prompt")
	cmd.Flags().Bool("no", false, "answer no to every repair prompt")
	cmd.Flags().Bool("skip-clean", false, "skip the check when the filesystem is marked clean")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")
	cmd.Flags().String("offset", "0", "byte offset of the filesystem within the image")
	cmd.Flags().IntP("partition", "p", 0, "check the filesystem in the given MBR partition slot (1-4)")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func RunCheck(cmd *cobra.Command, args []string) error {
	cfg, err := parseCheckOptions(cmd)
	if err != nil {
		return err
	}

	var bar *pbar.ProgressBarState
	if noProgress, _ := cmd.Flags().GetBool("no-progress"); !noProgress {
		cfg.Progress = func(done, total uint32) {
			if bar == nil {
				bar = pbar.NewProgressBarState(total)
			}
			bar.ProcessedClusters = done
			bar.Render(done == total)
		}
	}

	describeVolume(args[0], cfg.Log)

	res, err := check.Run(afero.NewOsFs(), args[0], cfg)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		exitCode = ExitFatal
		return err
	}

	exitCode = reportResult(cfg, res)
	return nil
}

func parseCheckOptions(cmd *cobra.Command) (check.Config, error) {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	yes, _ := cmd.Flags().GetBool("yes")
	no, _ := cmd.Flags().GetBool("no")
	skipClean, _ := cmd.Flags().GetBool("skip-clean")
	logLevel, _ := cmd.Flags().GetString("log-level")

	if yes && no {
		return check.Config{}, fmt.Errorf("--yes and --no are mutually exclusive")
	}

	offsetStr, _ := cmd.Flags().GetString("offset")
	offset, err := format.ParseBytes(offsetStr)
	if err != nil {
		return check.Config{}, fmt.Errorf("invalid offset: %w", err)
	}

	partition, _ := cmd.Flags().GetInt("partition")
	if partition < 0 || partition > 4 {
		return check.Config{}, fmt.Errorf("invalid partition slot %d", partition)
	}

	return check.Config{
		ReadOnly:  dryRun,
		AssumeYes: yes,
		AssumeNo:  no,
		SkipClean: skipClean,
		Offset:    offset,
		Partition: partition,
		Ask:       askUser,
		Log:       logger.New(os.Stderr, logger.ParseLevel(logLevel)),
	}, nil
}

// describeVolume reports what go-diskfs makes of the image, as an
// independent cross-check of the geometry probe. Best effort: an image
// it cannot identify is simply not described.
func describeVolume(path string, log *logger.Logger) {
	d, err := diskfs.Open(path)
	if err != nil {
		log.Debugf("volume not identified: %v", err)
		return
	}
	defer d.Close()

	fs, err := d.GetFilesystem(0)
	if err != nil || fs == nil {
		log.Debugf("no recognizable filesystem on %s", path)
		return
	}
	if fs.Type() == filesystem.TypeFat32 {
		log.Infof("volume label %q", strings.TrimSpace(fs.Label()))
	}
}

// askUser prompts on the terminal for one repair decision.
func askUser(def bool, prompt string) bool {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	fmt.Fprintf(os.Stderr, "%s? %s ", prompt, hint)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}

func reportResult(cfg check.Config, res *check.Result) int {
	log := cfg.Log
	if res.Skipped {
		return ExitOK
	}

	log.Infof("%d file(s), %d directory(ies) checked", res.Stats.Files, res.Stats.Dirs)
	log.Infof("%d free cluster(s), %d bad cluster(s)", res.Geometry.NumFree, res.Geometry.NumBad)

	switch {
	case res.Status&fat.StatusFatal != 0:
		log.Errorf("check aborted: %s", res.Status)
		return ExitFatal
	case res.Status&fat.StatusErrors != 0:
		log.Warnf("errors remain on the filesystem: %s", res.Status)
		return ExitErrors
	case res.Status&fat.StatusModified != 0:
		log.Infof("filesystem was modified and is now clean")
		return ExitOK
	default:
		log.Infof("filesystem is clean")
		return ExitOK
	}
}
