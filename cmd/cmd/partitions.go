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
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/chkfat/chkfat/internal/disk"
	"github.com/chkfat/chkfat/internal/fs"
	"github.com/chkfat/chkfat/pkg/util/format"
)

func DefinePartitionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "partitions <device>",
		Short:        "List the MBR partitions of an image file or disk",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunPartitions,
	}
}

func RunPartitions(cmd *cobra.Command, args []string) error {
	f, err := fs.Open(afero.NewOsFs(), fs.NormalizePath(args[0]), true)
	if err != nil {
		return err
	}
	defer f.Close()

	parts, err := disk.ReadPartitions(f)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		fmt.Println("no partitions found")
		return nil
	}

	for _, p := range parts {
		marker := " "
		if p.IsFAT() {
			marker = "*"
		}
		fmt.Printf("%s %d: %-14s %12s at offset %d\n",
			marker, p.Num, p.TypeName(),
			format.FormatBytes(int64(p.Sectors)*512), p.Offset)
	}
	fmt.Println("\npartitions marked * can be checked with --partition")
	return nil
}
