// Package analysis launches a target under the fingerprinting tracer and
// classifies command line arguments by how they change its execution.
package analysis

import (
	"fmt"
	"slices"
	"strings"
)

// Kind is the shape of a candidate argument
type Kind uint8

const (
	KindNone       Kind = iota // no argument at all
	KindFlag                   // -x
	KindFlagString             // -x <string>
	KindFile                   // <file>
	KindFlagFile               // -x <file>
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindFlag:
		return "flag"
	case KindFlagString:
		return "flag+string"
	case KindFile:
		return "file"
	case KindFlagFile:
		return "flag+file"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Role is what an argument was found to do
type Role uint8

const (
	RoleFlag Role = iota
	RoleStdinEnabler
	RoleFileEnabler
	RoleStringEnabler
)

func (r Role) String() string {
	switch r {
	case RoleFlag:
		return "FLAG"
	case RoleStdinEnabler:
		return "STDIN_ENABLER"
	case RoleFileEnabler:
		return "FILE_ENABLER"
	case RoleStringEnabler:
		return "STRING_ENABLER"
	default:
		return fmt.Sprintf("Role(%d)", r)
	}
}

// MarshalText implements encoding.TextMarshaler
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Argument is one candidate argument pair
type Argument struct {
	Kind  Kind   `json:"kind" yaml:"kind"`
	Flag  string `json:"flag,omitempty" yaml:"flag,omitempty"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
	Roles []Role `json:"roles,omitempty" yaml:"roles,omitempty"`
}

func None() Argument { return Argument{Kind: KindNone} }
func Flag(flag string) Argument { return Argument{Kind: KindFlag, Flag: flag} }
func FlagString(flag, s string) Argument { return Argument{Kind: KindFlagString, Flag: flag, Value: s} }
func File(path string) Argument { return Argument{Kind: KindFile, Value: path} }
func FlagFile(flag, path string) Argument {
	return Argument{Kind: KindFlagFile, Flag: flag, Value: path}
}

// Args returns the argument as it is passed on the command line
func (a Argument) Args() []string {
	var args []string
	if a.Flag != "" {
		args = append(args, a.Flag)
	}
	if a.Value != "" {
		args = append(args, a.Value)
	}
	return args
}

func (a Argument) String() string {
	if a.Kind == KindNone {
		return "<none>"
	}
	return strings.Join(a.Args(), " ")
}

// HasRole reports whether role was attached to the argument
func (a Argument) HasRole(role Role) bool {
	return slices.Contains(a.Roles, role)
}

// Classify returns the roles an argument plays given the result of running
// the target with it and the hashes of the baseline runs.
func Classify(arg Argument, res *Result, baseline []uint64) []Role {
	var roles []Role
	if res == nil {
		return roles
	}
	// a timed out run may have died before its tracer flushed a record
	var changed, marker bool
	if res.Record != nil {
		changed = !slices.Contains(baseline, res.Record.Hash)
		marker = res.Record.Marker
	}
	switch arg.Kind {
	case KindNone:
		if res.TimedOut {
			roles = append(roles, RoleStdinEnabler)
		}
	case KindFlag:
		if res.TimedOut {
			roles = append(roles, RoleStdinEnabler)
		}
		if changed {
			roles = append(roles, RoleFlag)
		}
	case KindFlagString:
		if changed {
			roles = append(roles, RoleStringEnabler)
		}
	case KindFile, KindFlagFile:
		if marker {
			roles = append(roles, RoleFileEnabler)
		}
	}
	return roles
}
