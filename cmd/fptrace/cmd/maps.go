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
	"strconv"
	"text/tabwriter"

	"github.com/blacktop/fptrace/internal/config"
	"github.com/blacktop/fptrace/pkg/proc"
	"github.com/blacktop/fptrace/pkg/symbols"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(mapsCmd)

	mapsCmd.Flags().BoolP("all", "a", false, "Show every mapping, not only the fingerprinted segments")
	mapsCmd.Flags().Uint64P("resolve", "r", 0, "Resolve an address to its symbol")
	viper.BindPFlag("maps.all", mapsCmd.Flags().Lookup("all"))
	viper.BindPFlag("maps.resolve", mapsCmd.Flags().Lookup("resolve"))
}

// mapsCmd represents the maps command
var mapsCmd = &cobra.Command{
	Use:           "maps <PID>",
	Short:         "Show the segment table of a running process",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}
		pid, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid pid %q", args[0])
		}
		p, err := proc.Open(pid)
		if err != nil {
			return err
		}

		if addr := viper.GetUint64("maps.resolve"); addr != 0 {
			res, err := symbols.NewProcessResolver(p)
			if err != nil {
				return err
			}
			sym, err := res.Resolve(addr)
			if err != nil {
				return errors.Wrapf(err, "failed to resolve %#x", addr)
			}
			if sym == nil {
				fmt.Printf("%#x: %s\n", addr, colorFaint("no symbol"))
			} else {
				fmt.Printf("%#x: %s+%#x\n", addr, colorKey(sym.Name), addr-sym.Base)
			}
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		if viper.GetBool("maps.all") {
			maps, err := p.Maps()
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "START\tEND\tPERMS\tSIZE\tPATH")
			for _, m := range maps {
				fmt.Fprintf(w, "%#x\t%#x\t%s\t%s\t%s\n", m.Start, m.End, m.Perms, humanize.IBytes(m.End-m.Start), m.Path)
			}
			return w.Flush()
		}

		segs, err := p.Segments(conf.Trace.Threshold)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "INDEX\tSTART\tEND\tSIZE")
		for _, s := range segs {
			fmt.Fprintf(w, "%d\t%#x\t%#x\t%s\n", s.Index, s.Start, s.End, humanize.IBytes(s.Size()))
		}
		return w.Flush()
	},
}
