package hammer

import (
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/sarchlab/hammerbed/hammer/memop"
)

// Operation is the memory access performed on each target in the loop.
type Operation int

// The operations.
const (
	OpLoad Operation = iota
	OpStore
	OpZeroFill
)

func (op Operation) String() string {
	switch op {
	case OpLoad:
		return "ldr"
	case OpStore:
		return "str"
	case OpZeroFill:
		return "zva"
	default:
		return "unknown"
	}
}

func (op Operation) access() memop.Access {
	switch op {
	case OpLoad:
		return memop.AccessLoad
	case OpStore:
		return memop.AccessStore
	case OpZeroFill:
		return memop.AccessZero
	default:
		panic(fmt.Sprintf("unknown hammering operation %d", op))
	}
}

// DefaultOperation is used when an operation name is not recognized.
const DefaultOperation = OpLoad

// ParseOperation converts a name into an operation. Unknown names fall back to
// DefaultOperation with a warning.
func ParseOperation(name string) Operation {
	switch strings.ToLower(name) {
	case "ldr", "load":
		return OpLoad
	case "str", "store":
		return OpStore
	case "zva", "zero", "zero-fill":
		return OpZeroFill
	}

	klog.Warningf("unknown operation %q, falling back to %s",
		name, DefaultOperation)

	return DefaultOperation
}

// Config describes one hammering call.
type Config struct {
	// Iterations is the number of loop rounds. In each round every target is
	// accessed once.
	Iterations uint64

	Operation Operation
	CacheOp   memop.CacheOp

	// Barrier inserts a full barrier between the maintenance and the access.
	Barrier bool
}

func (c Config) String() string {
	return fmt.Sprintf("iterations=%d op=%s cache=%s barrier=%t",
		c.Iterations, c.Operation, c.CacheOp, c.Barrier)
}
