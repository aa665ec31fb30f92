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
	"strings"
	"text/tabwriter"

	"github.com/blacktop/fptrace/internal/model"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	dbCmd.AddCommand(dbLsCmd)
}

func printRuns(runs []*model.Run) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTARGET\tARGS\tBLOCKS\tHASH\tMARKER\tSOURCE\tCREATED")
	for _, r := range runs {
		rec, err := r.Record()
		if err != nil {
			return errors.Wrapf(err, "invalid run %s", r.ID)
		}
		args := strings.Join(rec.Args, " ")
		if args == "" {
			args = keyArgs(r.Key)
		}
		marker := colorFaint("-")
		if r.Marker {
			marker = colorMarker("yes")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			r.Target,
			args,
			humanize.Comma(int64(r.BlockCount)),
			colorHash("%#016x", rec.Hash),
			marker,
			r.Source,
			humanize.Time(r.CreatedAt),
		)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// dbLsCmd represents the db ls command
var dbLsCmd = &cobra.Command{
	Use:           "ls [TARGET]",
	Aliases:       []string{"list"},
	Short:         "List stored records",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := connectDatabase()
		if err != nil {
			return err
		}
		defer store.Close()

		var target string
		if len(args) > 0 {
			target = args[0]
		}
		runs, err := store.List(target)
		if err != nil {
			return errors.Wrap(err, "failed to list records")
		}
		return printRuns(runs)
	},
}
