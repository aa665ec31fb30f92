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
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/blacktop/fptrace/internal/colors"
	"github.com/blacktop/fptrace/internal/config"
	"github.com/blacktop/fptrace/internal/db"
	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

var colorKey = colors.BoldHiBlue().SprintFunc()
var colorHash = colors.BoldMagenta().SprintfFunc()
var colorFaint = colors.FaintHiBlue().SprintFunc()
var colorMarker = colors.BoldHiGreen().SprintFunc()
var colorBad = colors.BoldHiRed().SprintFunc()

// openDatabase connects to the configured record store. It returns nil when
// no store is configured.
func openDatabase(conf *config.Config) (db.Database, error) {
	var (
		store db.Database
		err   error
	)
	switch conf.Database.Driver {
	case "":
		return nil, nil
	case "sqlite":
		store, err = db.NewSqlite(conf.Database.Path, 1000)
	case "postgres":
		store, err = db.NewPostgres(
			conf.Database.Host,
			conf.Database.Port,
			conf.Database.User,
			conf.Database.Password,
			conf.Database.Name,
			conf.Database.SSLMode,
		)
	case "memory":
		store, err = db.NewInMemory(conf.Database.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", conf.Database.Driver)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s database", conf.Database.Driver)
	}
	if err := store.Connect(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s database", conf.Database.Driver)
	}
	return store, nil
}

// keyArgs decodes the invocation arguments an output key was derived from
func keyArgs(key string) string {
	if key == "none" {
		return ""
	}
	dat, err := hex.DecodeString(key)
	if err != nil {
		return "?"
	}
	return string(dat)
}

func recordString(rec *fingerprint.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", colorKey("blocks:"), humanize.Comma(int64(rec.BlockCount)))
	fmt.Fprintf(&sb, "  %s %s", colorKey("hash:"), colorHash("%#016x", rec.Hash))
	if rec.Marker {
		fmt.Fprintf(&sb, "  %s", colorMarker("marker"))
	} else {
		fmt.Fprintf(&sb, "  %s", colorFaint("no marker"))
	}
	return sb.String()
}

// blockLines pairs every recorded block with the address it was executed at
func blockLines(segs fingerprint.SegmentTable, trace []fingerprint.AbstractAddress) ([]string, error) {
	lines := make([]string, 0, len(trace))
	for i, a := range trace {
		addr, err := segs.Resolve(a)
		if err != nil {
			return nil, errors.Wrapf(err, "block %d", i)
		}
		lines = append(lines, fmt.Sprintf("%6d  %s  %#x", i, a, addr))
	}
	return lines, nil
}
