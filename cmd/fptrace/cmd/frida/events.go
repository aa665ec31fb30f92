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
	"fmt"
	"strconv"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/mitchellh/mapstructure"
)

// message is a payload sent by data/trace.js
type message struct {
	Type   string     `mapstructure:"type"`
	Blocks [][]string `mapstructure:"blocks"`
	PC     string     `mapstructure:"pc"`
	Status int        `mapstructure:"status"`
}

// tracer is the part of fingerprint.LockedRun the script drives
type tracer interface {
	OpenGate()
	OnBasicBlock(fingerprint.BlockEvent)
	OnCallTransfer(fingerprint.CallEvent)
	Finalize(status int) (*fingerprint.Record, error)
}

type result struct {
	rec    *fingerprint.Record
	status int
	err    error
}

type dispatcher struct {
	run  tracer
	done chan result
}

func newDispatcher(run tracer) *dispatcher {
	return &dispatcher{run: run, done: make(chan result, 1)}
}

func parseAddr(s string) (uint64, error) {
	addr, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %v", s, err)
	}
	return addr, nil
}

// dispatch applies a script payload to the run and reports whether the
// script thread is blocked waiting for an ack.
func (d *dispatcher) dispatch(payload map[string]any) (bool, error) {
	var msg message
	if err := mapstructure.Decode(payload, &msg); err != nil {
		return false, fmt.Errorf("failed to decode payload: %v", err)
	}

	switch msg.Type {
	case "gate":
		d.run.OpenGate()
	case "blocks":
		for _, b := range msg.Blocks {
			if len(b) != 2 {
				return false, fmt.Errorf("malformed block event %v", b)
			}
			start, err := parseAddr(b[0])
			if err != nil {
				return false, err
			}
			end, err := parseAddr(b[1])
			if err != nil {
				return false, err
			}
			d.run.OnBasicBlock(fingerprint.BlockEvent{Start: start, End: end})
		}
	case "call":
		pc, err := parseAddr(msg.PC)
		if err != nil {
			return true, err
		}
		d.run.OnCallTransfer(fingerprint.CallEvent{PC: pc})
		return true, nil
	case "exit":
		rec, err := d.run.Finalize(msg.Status)
		d.finish(result{rec: rec, status: msg.Status, err: err})
		return true, nil
	default:
		return false, fmt.Errorf("unknown message type %q", msg.Type)
	}

	return false, nil
}

// finish reports the outcome of the run; only the first one is kept
func (d *dispatcher) finish(r result) {
	select {
	case d.done <- r:
	default:
	}
}
