package symbols

import "strings"

// Decorations the toolchains attach to a symbol name.
const (
	SuffixPLT      = "@plt"
	SuffixVersion  = "@"
	PrefixStub     = "__stub_"
	PrefixJump     = "j_"
	PrefixMachOSym = "_"
)

// StubPrefixes lists the prefixes stripped from stub and thunk names
var StubPrefixes = []string{
	PrefixStub,
	PrefixJump,
}

// StripStubPrefixes removes all known stub prefixes from name. A name made
// of nothing but a prefix is kept as is.
func StripStubPrefixes(name string) string {
	core := name
trimLoop:
	for {
		for _, prefix := range StubPrefixes {
			if strings.HasPrefix(core, prefix) && len(core) > len(prefix) {
				core = strings.TrimPrefix(core, prefix)
				continue trimLoop
			}
		}
		break
	}
	return core
}

// NormalizeELF turns "fclose@plt" and "fclose@@GLIBC_2.1" into "fclose"
func NormalizeELF(name string) string {
	name = strings.TrimSuffix(name, SuffixPLT)
	if idx := strings.Index(name, SuffixVersion); idx > 0 {
		name = name[:idx]
	}
	return StripStubPrefixes(name)
}

// NormalizeMachO drops the leading underscore the C compiler adds to every
// Mach-O symbol.
func NormalizeMachO(name string) string {
	core := StripStubPrefixes(name)
	if len(core) > 1 && strings.HasPrefix(core, PrefixMachOSym) {
		return core[1:]
	}
	return core
}
