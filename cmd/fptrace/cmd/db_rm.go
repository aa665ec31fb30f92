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
	"strconv"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	dbCmd.AddCommand(dbRmCmd)
	dbCmd.AddCommand(dbFindCmd)
}

// dbRmCmd represents the db rm command
var dbRmCmd = &cobra.Command{
	Use:           "rm <ID>...",
	Short:         "Delete stored records",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := connectDatabase()
		if err != nil {
			return err
		}
		defer store.Close()

		for _, id := range args {
			if err := store.Delete(id); err != nil {
				return errors.Wrapf(err, "failed to delete %s", id)
			}
			log.WithField("id", id).Info("Deleted")
		}
		return nil
	},
}

// dbFindCmd represents the db find command
var dbFindCmd = &cobra.Command{
	Use:           "find <HASH>",
	Short:         "Find the stored executions sharing a fingerprint",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid hash %q", args[0])
		}
		store, err := connectDatabase()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.FindByHash(hash)
		if err != nil {
			return errors.Wrap(err, "failed to query records")
		}
		return printRuns(runs)
	},
}
