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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/fptrace/internal/config"
	"github.com/blacktop/fptrace/internal/db"
	"github.com/blacktop/fptrace/internal/model"
	"github.com/blacktop/fptrace/pkg/analysis"
	"github.com/blacktop/fptrace/pkg/dictionary"
	"github.com/caarlos0/ctrlc"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("tracer", "l", "", "Tracer library to preload")
	runCmd.Flags().DurationP("timeout", "t", analysis.DefaultTimeout, "Time limit of one execution")
	runCmd.Flags().StringP("workdir", "w", "", "Working directory of the target (default is a temporary folder)")
	runCmd.Flags().String("stdin", "", "Data fed to the target's stdin")
	runCmd.Flags().Bool("fuzz", false, "Discover the arguments that change the target's behavior")
	runCmd.Flags().StringSliceP("dict", "d", []string{}, "Candidate flags to fuzz with")
	runCmd.Flags().String("dict-file", "", "File of candidate flags, one per line (see 'fptrace dict')")
	runCmd.Flags().Int("random", 0, "Random flags added to the fuzzing baseline")
	runCmd.Flags().IntP("parallel", "j", 4, "Concurrent baseline executions")
	runCmd.Flags().Bool("save", false, "Save the record to the configured database")
	runCmd.MarkFlagFilename("tracer", "so", "dylib")
	runCmd.MarkFlagDirname("workdir")
	viper.BindPFlag("runner.tracer", runCmd.Flags().Lookup("tracer"))
	viper.BindPFlag("runner.timeout", runCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("runner.workdir", runCmd.Flags().Lookup("workdir"))
	viper.BindPFlag("run.stdin", runCmd.Flags().Lookup("stdin"))
	viper.BindPFlag("run.fuzz", runCmd.Flags().Lookup("fuzz"))
	viper.BindPFlag("run.dict", runCmd.Flags().Lookup("dict"))
	viper.BindPFlag("run.dict-file", runCmd.Flags().Lookup("dict-file"))
	viper.BindPFlag("run.random", runCmd.Flags().Lookup("random"))
	viper.BindPFlag("run.parallel", runCmd.Flags().Lookup("parallel"))
	viper.BindPFlag("run.save", runCmd.Flags().Lookup("save"))
	runCmd.MarkFlagsMutuallyExclusive("fuzz", "stdin")
}

func readDictionary(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dictionary.Read(f)
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [flags] -- <TARGET> [ARGS...]",
	Short: "Fingerprint executions of a target under the tracer library",
	Example: `  # fingerprint one execution
  ❯ fptrace run -l ./libfptrace.so -- /usr/bin/xxd -r input.hex
  # find the flags and file arguments xxd understands
  ❯ fptrace run -l ./libfptrace.so --fuzz -d -r,-p,-i,-c -- /usr/bin/xxd`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if conf.Runner.Tracer == "" {
			return fmt.Errorf("a tracer library is required (--tracer or runner.tracer)")
		}
		target, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		workdir := conf.Runner.WorkDir
		if workdir == "" {
			workdir, err = os.MkdirTemp("", "fptrace")
			if err != nil {
				return errors.Wrap(err, "failed to create working directory")
			}
			defer os.RemoveAll(workdir)
		}

		runner := &analysis.Runner{
			Target:    target,
			TracerLib: conf.Runner.Tracer,
			OutputDir: conf.Output.Dir,
			WorkDir:   workdir,
			Timeout:   conf.Runner.Timeout,
		}
		if stdin := viper.GetString("run.stdin"); stdin != "" {
			runner.Stdin = []byte(stdin)
		}

		var store db.Database
		if viper.GetBool("run.save") {
			store, err = openDatabase(conf)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("--save requires a database in the config")
			}
			defer store.Close()
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if !viper.GetBool("run.fuzz") {
			return ctrlc.Default.Run(ctx, func() error {
				res, err := runner.Run(ctx, args[1:], nil)
				if res == nil {
					return err
				}
				log.WithFields(log.Fields{
					"exit":      res.ExitCode,
					"timed_out": res.TimedOut,
					"duration":  res.Duration.Round(time.Millisecond),
				}).Info("Target finished")
				if err != nil {
					return err
				}
				fmt.Printf("%s\n  %s\n", colorKey(strings.Join(args, " ")), recordString(res.Record))
				if store != nil {
					run := model.NewRun(target, "run", res.Record)
					run.Status = res.ExitCode
					run.TimedOut = res.TimedOut
					if err := store.Save(run); err != nil {
						return errors.Wrap(err, "failed to save record")
					}
					log.WithField("id", run.ID).Info("Saved record")
				}
				return nil
			})
		}

		words := viper.GetStringSlice("run.dict")
		if path := viper.GetString("run.dict-file"); path != "" {
			more, err := readDictionary(path)
			if err != nil {
				return errors.Wrap(err, "failed to read dictionary")
			}
			words = append(words, more...)
		}
		canary, err := analysis.PlantCanary(workdir)
		if err != nil {
			return err
		}

		fuzzer := &analysis.Fuzzer{
			Analyzer:       runner,
			Dictionary:     words,
			CanaryPath:     canary,
			RandomBaseline: viper.GetInt("run.random"),
			Parallelism:    viper.GetInt("run.parallel"),
		}
		log.WithFields(log.Fields{
			"target": target,
			"words":  humanize.Comma(int64(len(words))),
		}).Info("Fuzzing")

		var valid []analysis.Argument
		if err := ctrlc.Default.Run(ctx, func() error {
			valid, err = fuzzer.Fuzz(ctx)
			return err
		}); err != nil {
			if len(valid) == 0 {
				return err
			}
			log.WithError(err).Warn("Fuzzing interrupted")
		}

		for _, arg := range valid {
			var roles []string
			for _, r := range arg.Roles {
				roles = append(roles, r.String())
			}
			fmt.Printf("%-30s %s\n", colorKey(arg.String()), colorFaint(strings.Join(roles, ", ")))
		}
		return nil
	},
}
