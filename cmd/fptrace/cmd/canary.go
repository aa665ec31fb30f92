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

	"github.com/apex/log"
	"github.com/blacktop/fptrace/internal/config"
	"github.com/blacktop/fptrace/pkg/proc"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(canaryCmd)
}

// canaryCmd represents the canary command
var canaryCmd = &cobra.Command{
	Use:           "canary <PID>",
	Short:         "Check whether a running process holds the canary file open",
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

		fd, path, ok := p.FindMarker(conf.Trace.Marker)
		if !ok {
			log.WithField("marker", conf.Trace.Marker).Warn("No open handle matches")
			os.Exit(1)
		}
		log.WithFields(log.Fields{
			"fd":   fd,
			"path": path,
		}).Info(colorMarker("Canary is open"))
		return nil
	},
}
