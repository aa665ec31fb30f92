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
	"path/filepath"

	"github.com/apex/log"
	"github.com/blacktop/fptrace/internal/config"
	"github.com/blacktop/fptrace/internal/db"
	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/blacktop/fptrace/pkg/replay"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringP("output", "o", "", "Folder to write the record to")
	replayCmd.MarkFlagDirname("output")
	replayCmd.Flags().Bool("save", false, "Save the record to the configured database")
	replayCmd.Flags().StringP("target", "t", "", "Target name to save the record under (default is the log name)")
	replayCmd.Flags().Bool("stats", false, "Print event statistics")
	viper.BindPFlag("replay.output", replayCmd.Flags().Lookup("output"))
	viper.BindPFlag("replay.save", replayCmd.Flags().Lookup("save"))
	viper.BindPFlag("replay.target", replayCmd.Flags().Lookup("target"))
	viper.BindPFlag("replay.stats", replayCmd.Flags().Lookup("stats"))
}

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:           "replay <LOG>...",
	Aliases:       []string{"r"},
	Short:         "Fingerprint recorded executions",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}

		var sinks fingerprint.MultiSink
		if out := viper.GetString("replay.output"); out != "" {
			fs, err := fingerprint.NewFileSink(out)
			if err != nil {
				return errors.Wrap(err, "failed to create output folder")
			}
			sinks = append(sinks, fs)
		}
		var store db.Database
		if viper.GetBool("replay.save") {
			store, err = openDatabase(conf)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("--save requires a database in the config")
			}
			defer store.Close()
		}

		for _, path := range args {
			l, err := replay.Open(path)
			if err != nil {
				return errors.Wrapf(err, "failed to open log %s", path)
			}

			sink := sinks
			if store != nil {
				target := viper.GetString("replay.target")
				if target == "" {
					target = filepath.Base(path)
				}
				sink = append(sink, &db.Sink{DB: store, Target: target, Source: "replay"})
			}

			player := replay.NewPlayer(l)
			trace := conf.Trace
			run, err := player.NewRun(&trace, sink)
			if err != nil {
				return err
			}
			rec, err := player.Play(run)
			if err != nil {
				return errors.Wrapf(err, "failed to replay %s", path)
			}
			if rec == nil {
				log.WithField("log", path).Warn("run was aborted, no record")
				continue
			}

			fmt.Printf("%s\n  %s\n", colorKey(path), recordString(rec))
			if viper.GetBool("replay.stats") {
				s := run.Stats()
				log.WithFields(log.Fields{
					"blocks":    s.Blocks,
					"recorded":  s.Recorded,
					"gated":     s.Gated,
					"threshold": s.Threshold,
					"unmapped":  s.NoSegment,
					"calls":     s.Calls,
					"guarded":   s.Guarded,
				}).Info("Events")
			}
		}

		return nil
	},
}
