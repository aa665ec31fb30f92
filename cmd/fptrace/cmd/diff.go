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

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(diffCmd)
}

// compareRecords describes how b differs from a
func compareRecords(a, b *fingerprint.Record) (string, bool) {
	switch {
	case a.Equal(b):
		return "same execution", true
	case a.Hash == b.Hash && a.BlockCount == b.BlockCount:
		// identical paths, the canary was opened in only one of them
		return "same path, marker differs", false
	case a.Hash == b.Hash:
		return fmt.Sprintf("same prefix, lengths differ (%+d blocks)", b.BlockCount-a.BlockCount), false
	default:
		return fmt.Sprintf("different path (%+d blocks)", b.BlockCount-a.BlockCount), false
	}
}

// diffCmd represents the diff command
var diffCmd = &cobra.Command{
	Use:           "diff <RECORD> <RECORD>",
	Short:         "Compare two fingerprint records",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {

		var recs [2]*fingerprint.Record
		for i, path := range args {
			rec, err := fingerprint.ReadRecordFile(path)
			if err != nil {
				return errors.Wrapf(err, "failed to read record %s", path)
			}
			recs[i] = rec
			fmt.Printf("%s\n  %s\n", colorKey(path), recordString(rec))
		}

		verdict, same := compareRecords(recs[0], recs[1])
		if same {
			fmt.Println(colorMarker(verdict))
		} else {
			fmt.Println(colorBad(verdict))
		}
		return nil
	},
}
