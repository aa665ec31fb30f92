//go:build unicorn

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

	"github.com/apex/log"
	"github.com/blacktop/fptrace/internal/config"
	"github.com/blacktop/fptrace/pkg/emu"
	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/blacktop/fptrace/pkg/replay"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(emuCmd)

	emuCmd.Flags().Uint64P("count", "c", emu.DefaultMaxInstructions, "Instruction budget")
	emuCmd.Flags().StringP("output", "o", "", "Folder to write the record to")
	emuCmd.Flags().String("record", "", "Save the emulated events as a replay log")
	emuCmd.Flags().Bool("maps", false, "Print the emulator memory regions")
	emuCmd.Flags().Bool("blocks", false, "Print every recorded block")
	emuCmd.MarkFlagDirname("output")
	viper.BindPFlag("emu.count", emuCmd.Flags().Lookup("count"))
	viper.BindPFlag("emu.output", emuCmd.Flags().Lookup("output"))
	viper.BindPFlag("emu.record", emuCmd.Flags().Lookup("record"))
	viper.BindPFlag("emu.maps", emuCmd.Flags().Lookup("maps"))
	viper.BindPFlag("emu.blocks", emuCmd.Flags().Lookup("blocks"))
}

// emuCmd represents the emu command
var emuCmd = &cobra.Command{
	Use:           "emu <PROGRAM>",
	Short:         "Fingerprint an arm64 program under emulation",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}
		prog, err := emu.ParseProgram(args[0])
		if err != nil {
			return err
		}

		e, err := emu.NewEmulation(prog, &emu.Config{
			MaxInstructions: viper.GetUint64("emu.count"),
			Verbose:         viper.GetBool("verbose"),
		})
		if err != nil {
			return errors.Wrap(err, "failed to create emulation")
		}
		defer e.Close()

		if viper.GetBool("emu.maps") {
			if err := e.DumpMemRegions(); err != nil {
				return err
			}
		}

		var sinks fingerprint.MultiSink
		if out := viper.GetString("emu.output"); out != "" {
			fs, err := fingerprint.NewFileSink(out)
			if err != nil {
				return errors.Wrap(err, "failed to create output folder")
			}
			sinks = append(sinks, fs)
		}

		trace := conf.Trace
		run, err := e.NewRun(&trace, sinks)
		if err != nil {
			return err
		}
		var tracer fingerprint.Tracer = run
		var rec *replay.Recorder
		if viper.GetString("emu.record") != "" {
			maps, err := e.Maps()
			if err != nil {
				return err
			}
			l := &replay.Log{Args: prog.Args, Symbols: prog.StubTable().Entries()}
			l.SetMaps(maps)
			rec = replay.NewRecorder(run, l)
			tracer = rec
		}

		record, err := e.Run(tracer)
		if err != nil && !errors.Is(err, fingerprint.ErrSetupFailed) {
			return errors.Wrapf(err, "failed to emulate %s", args[0])
		}
		if rec != nil {
			if err := rec.Log().Save(viper.GetString("emu.record")); err != nil {
				return errors.Wrap(err, "failed to save replay log")
			}
		}
		if record == nil {
			log.Warn("run was aborted, no record")
			return nil
		}

		status, _ := e.Status()
		fmt.Printf("%s (exit %d)\n  %s\n", colorKey(args[0]), status, recordString(record))
		if viper.GetBool("emu.blocks") {
			lines, err := blockLines(run.Segments(), run.Trace())
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Println(colorFaint(l))
			}
		}
		return nil
	},
}
