/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:           "show <RECORD>...",
	Short:         "Show fingerprint records",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		var paths []string
		for _, arg := range args {
			fi, err := os.Stat(arg)
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				paths = append(paths, arg)
				continue
			}
			entries, err := os.ReadDir(arg)
			if err != nil {
				return errors.Wrapf(err, "failed to read folder %s", arg)
			}
			for _, e := range entries {
				if !e.IsDir() {
					paths = append(paths, filepath.Join(arg, e.Name()))
				}
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ARGS\tBLOCKS\tHASH\tMARKER\tWRITTEN")
		for _, path := range paths {
			rec, err := fingerprint.ReadRecordFile(path)
			if err != nil {
				return errors.Wrapf(err, "failed to read record %s", path)
			}
			fi, err := os.Stat(path)
			if err != nil {
				return err
			}
			args := keyArgs(filepath.Base(path))
			if args == "" {
				args = "<none>"
			}
			marker := colorFaint("-")
			if rec.Marker {
				marker = colorMarker("yes")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				args,
				humanize.Comma(int64(rec.BlockCount)),
				colorHash("%#016x", rec.Hash),
				marker,
				humanize.Time(fi.ModTime()),
			)
		}
		return w.Flush()
	},
}
