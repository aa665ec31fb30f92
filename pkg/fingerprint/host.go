package fingerprint

// MemoryMapper queries the traced process' memory map
type MemoryMapper interface {
	Maps() ([]MapEntry, error)
}

// MapperFunc adapts a function to a MemoryMapper
type MapperFunc func() ([]MapEntry, error)

func (f MapperFunc) Maps() ([]MapEntry, error) { return f() }

// Symbol is the symbolic descriptor of an instruction pointer
type Symbol struct {
	Name string
	Base uint64
}

// SymbolResolver resolves an instruction pointer to a symbol.
// It returns nil, nil when the address has no symbol.
type SymbolResolver interface {
	Resolve(pc uint64) (*Symbol, error)
}

// HandleInspector enumerates the open handles of the traced process
type HandleInspector interface {
	// Handles lists the currently open handle numbers.
	Handles() ([]uintptr, error)
	// Resolve returns the path or resource a handle refers to.
	Resolve(fd uintptr) (string, error)
}

// Sink receives the finalized record of a run
type Sink interface {
	Write(key string, rec *Record) error
}

// BlockEvent is a basic-block entry delivered by the host
type BlockEvent struct {
	Start uint64
	End   uint64
}

// CallEvent is a call transfer delivered by the host; PC is the instruction
// pointer handed to the symbol resolver.
type CallEvent struct {
	PC uint64
}

// Host bundles the collaborators a Run needs
type Host struct {
	Mapper  MemoryMapper
	Symbols SymbolResolver
	Handles HandleInspector
	Sink    Sink
	Args    []string // invocation arguments, without argv[0]
}
