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
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/blacktop/fptrace/internal/model"
	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	dbCmd.AddCommand(dbImportCmd)

	dbImportCmd.Flags().StringP("target", "t", "", "Target the records belong to")
	dbImportCmd.MarkFlagRequired("target")
	viper.BindPFlag("db.import.target", dbImportCmd.Flags().Lookup("target"))
}

// dbImportCmd represents the db import command
var dbImportCmd = &cobra.Command{
	Use:           "import <RECORD|FOLDER>...",
	Short:         "Import record files written by the tracer",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := connectDatabase()
		if err != nil {
			return err
		}
		defer store.Close()

		target := viper.GetString("db.import.target")

		var paths []string
		for _, arg := range args {
			if fi, err := os.Stat(arg); err == nil && fi.IsDir() {
				matches, err := filepath.Glob(filepath.Join(arg, "*"))
				if err != nil {
					return err
				}
				paths = append(paths, matches...)
				continue
			}
			paths = append(paths, arg)
		}

		var imported int
		for _, path := range paths {
			rec, err := fingerprint.ReadRecordFile(path)
			if err != nil {
				log.WithError(err).WithField("path", path).Warn("Skipping")
				continue
			}
			if err := store.Save(model.NewRun(target, "import", rec)); err != nil {
				return errors.Wrapf(err, "failed to save %s", path)
			}
			imported++
		}
		log.WithField("count", imported).Info("Imported records")
		return nil
	},
}
