//go:build frida

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
package frida

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/fptrace/internal/config"
	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/blacktop/fptrace/pkg/proc"
	"github.com/blacktop/fptrace/pkg/symbols"
	"github.com/caarlos0/ctrlc"
	"github.com/frida/frida-go/frida"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//go:embed data/trace.js
var traceScriptData []byte

func init() {
	FridaCmd.AddCommand(fridaTraceCmd)

	fridaTraceCmd.Flags().StringP("udid", "u", "", "Device ID to spawn the target on (default is the local device)")
	fridaTraceCmd.Flags().String("entry", "", "Address to start recording at (default is main)")
	fridaTraceCmd.Flags().StringP("output", "o", "", "Folder to write the record to")
	fridaTraceCmd.MarkFlagDirname("output")
	fridaTraceCmd.Flags().DurationP("timeout", "t", 0, "Detach if the target has not exited after this long")
	viper.BindPFlag("frida.trace.udid", fridaTraceCmd.Flags().Lookup("udid"))
	viper.BindPFlag("frida.trace.entry", fridaTraceCmd.Flags().Lookup("entry"))
	viper.BindPFlag("frida.trace.output", fridaTraceCmd.Flags().Lookup("output"))
	viper.BindPFlag("frida.trace.timeout", fridaTraceCmd.Flags().Lookup("timeout"))
}

func pickDevice(udid string) (*frida.Device, error) {
	mgr := frida.NewDeviceManager()
	if len(udid) > 0 {
		dev, err := mgr.DeviceByID(udid)
		if err != nil {
			return nil, fmt.Errorf("failed to get device by id %s: %v", udid, err)
		}
		return dev, nil
	}
	devices, err := mgr.EnumerateDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %v", err)
	}
	for _, d := range devices {
		if d.DeviceType() == frida.DeviceTypeLocal {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no local device found")
}

// fridaTraceCmd represents the frida trace command
var fridaTraceCmd = &cobra.Command{
	Use:           "trace [flags] -- <TARGET> [ARGS...]",
	Short:         "Spawn a target under Stalker and fingerprint its execution",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {

		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}
		out := viper.GetString("frida.trace.output")
		if out == "" {
			out = conf.Output.Dir
		}
		sink, err := fingerprint.NewFileSink(out)
		if err != nil {
			return errors.Wrap(err, "failed to create output folder")
		}

		log.WithField("version", fridaVersion).Info("Frida")

		dev, err := pickDevice(viper.GetString("frida.trace.udid"))
		if err != nil {
			return err
		}
		log.Infof("Chosen device: %s", dev.Name())

		opts := frida.NewSpawnOptions()
		opts.SetArgv(args)
		pid, err := dev.Spawn(args[0], opts)
		if err != nil {
			return fmt.Errorf("failed to spawn %s: %v", args[0], err)
		}
		log.WithField("pid", pid).Debug("Spawned")

		session, err := dev.Attach(pid, nil)
		if err != nil {
			dev.Kill(pid)
			return fmt.Errorf("failed to attach to %d: %v", pid, err)
		}
		defer session.Detach()

		p, err := proc.Open(pid)
		if err != nil {
			dev.Kill(pid)
			return err
		}
		resolver, err := symbols.NewProcessResolver(p)
		if err != nil {
			dev.Kill(pid)
			return err
		}
		resolver.RefreshOnMiss = true // dlopen'd libraries
		cache, err := symbols.NewCache(resolver, symbols.DefaultCacheSize)
		if err != nil {
			dev.Kill(pid)
			return err
		}

		trace := conf.Trace
		inner, err := fingerprint.NewRun(&trace, fingerprint.Host{
			Mapper:  p,
			Symbols: cache,
			Handles: p,
			Sink:    sink,
			Args:    args[1:],
		})
		if err != nil {
			dev.Kill(pid)
			return err
		}
		run := fingerprint.NewLockedRun(inner)
		disp := newDispatcher(run)

		script, err := session.CreateScript(string(traceScriptData))
		if err != nil {
			dev.Kill(pid)
			return fmt.Errorf("failed to create script: %v", err)
		}

		ack, _ := json.Marshal(map[string]string{"type": "ack"})
		script.On("message", func(data string) {
			msg, err := frida.ScriptMessageToMessage(data)
			if err != nil {
				log.Errorf("failed to parse message: %v", err)
				return
			}
			switch msg.Type {
			case frida.MessageTypeError:
				log.Errorf("script: %s", msg.Description)
			case frida.MessageTypeLog:
				log.Debugf("script: %v", msg.Payload)
			case frida.MessageTypeSend:
				if !msg.IsPayloadMap {
					log.Warnf("unexpected payload: %v", msg.Payload)
					return
				}
				wait, err := disp.dispatch(msg.Payload.(map[string]any))
				if err != nil {
					log.Error(err.Error())
				}
				if wait {
					script.Post(string(ack), nil)
				}
			}
		})

		session.On("detached", func(reason frida.SessionDetachReason, crash *frida.Crash) {
			disp.finish(result{err: fmt.Errorf("session detached before exit: %s", reason)})
		})

		if err := script.Load(); err != nil {
			dev.Kill(pid)
			return fmt.Errorf("failed to load script: %v", err)
		}
		defer script.Unload()

		// segments are built while the target is still suspended
		if err := run.Start(); err != nil {
			log.WithError(err).Warn("setup failed, the run will not be recorded")
		}
		hooked := script.ExportsCall("init", conf.Trace.Guarded, viper.GetString("frida.trace.entry"))
		log.WithField("hooked", hooked).Debug("Installed guarded hooks")

		if err := dev.Resume(pid); err != nil {
			dev.Kill(pid)
			return fmt.Errorf("error resuming: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if timeout := viper.GetDuration("frida.trace.timeout"); timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		var res result
		start := time.Now()
		if err := ctrlc.Default.Run(ctx, func() error {
			select {
			case res = <-disp.done:
				return res.err
			case <-ctx.Done():
				return ctx.Err()
			}
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				log.Warn("Detaching Session...")
				dev.Kill(pid)
				return nil
			}
			if errors.Is(err, fingerprint.ErrSetupFailed) {
				log.Warn("target exited, no record (setup failed)")
				return nil
			}
			dev.Kill(pid)
			return err
		}

		log.WithFields(log.Fields{
			"status":   res.status,
			"duration": time.Since(start).Round(time.Millisecond),
		}).Info("Target exited")
		fmt.Printf("%s %s\n", fingerprint.OutputKey(args[1:]), res.rec)

		return nil
	},
}
