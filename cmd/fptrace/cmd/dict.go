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
	"io"
	"os"

	"github.com/apex/log"
	"github.com/blacktop/fptrace/pkg/dictionary"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(dictCmd)

	dictCmd.Flags().StringP("heuristic", "H", string(dictionary.Man), "Heuristic to collect arguments with (man, binary, generation)")
	dictCmd.Flags().StringP("output", "o", "", "File to write the dictionary to (default is stdout)")
	dictCmd.Flags().IntP("top", "n", 0, "Keep only the N most frequent arguments")
	dictCmd.Flags().StringSlice("man-config", dictionary.DefaultManConfigs, "man-db configuration files naming the manual folders")
	dictCmd.Flags().IntP("parallel", "j", 8, "Manual pages read at once")
	dictCmd.RegisterFlagCompletionFunc("heuristic", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for _, h := range dictionary.Heuristics {
			names = append(names, string(h))
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})
	viper.BindPFlag("dict.heuristic", dictCmd.Flags().Lookup("heuristic"))
	viper.BindPFlag("dict.output", dictCmd.Flags().Lookup("output"))
	viper.BindPFlag("dict.top", dictCmd.Flags().Lookup("top"))
	viper.BindPFlag("dict.man-config", dictCmd.Flags().Lookup("man-config"))
	viper.BindPFlag("dict.parallel", dictCmd.Flags().Lookup("parallel"))
}

// dictCmd represents the dict command
var dictCmd = &cobra.Command{
	Use:   "dict [TARGET]",
	Short: "Generate a dictionary of candidate arguments",
	Example: `  # options documented in the installed manual pages
  ❯ fptrace dict -o man.dict
  # the 50 option-like strings found most often in a binary
  ❯ fptrace dict -H binary -n 50 /usr/bin/xxd
  # fuzz with it
  ❯ fptrace run -l ./libfptrace.so --fuzz --dict-file man.dict -- /usr/bin/xxd`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		h, err := dictionary.ParseHeuristic(viper.GetString("dict.heuristic"))
		if err != nil {
			return err
		}
		g := &dictionary.Generator{
			ManConfigs:  viper.GetStringSlice("dict.man-config"),
			Parallelism: viper.GetInt("dict.parallel"),
		}
		if len(args) > 0 {
			g.Target = args[0]
		}

		words, err := g.Generate(context.Background(), h)
		if err != nil {
			return errors.Wrapf(err, "failed to generate %s dictionary", h)
		}
		words = dictionary.Top(words, viper.GetInt("dict.top"))

		var w io.Writer = os.Stdout
		if out := viper.GetString("dict.output"); out != "" {
			f, err := os.Create(out)
			if err != nil {
				return errors.Wrap(err, "failed to create dictionary file")
			}
			defer f.Close()
			w = f
		}
		if err := dictionary.Write(w, words); err != nil {
			return errors.Wrap(err, "failed to write dictionary")
		}
		log.WithFields(log.Fields{"heuristic": h, "arguments": len(words)}).Info("Dictionary generated")
		if len(words) == 0 {
			fmt.Fprintln(os.Stderr, colorFaint("no arguments found"))
		}
		return nil
	},
}
