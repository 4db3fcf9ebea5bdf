package buffer

import (
	"strings"

	"k8s.io/klog/v2"
)

// Backing selects the pages that back a buffer.
type Backing int

// The page backings.
const (
	Standard Backing = iota
	HugePage2MB
	HugePage1GB
)

func (b Backing) String() string {
	switch b {
	case Standard:
		return "normal"
	case HugePage2MB:
		return "2M"
	case HugePage1GB:
		return "1G"
	default:
		return "unknown"
	}
}

// PageSize returns the size of the pages of the backing.
func (b Backing) PageSize() uint64 {
	switch b {
	case HugePage2MB:
		return 2 << 20
	case HugePage1GB:
		return 1 << 30
	default:
		return 4 << 10
	}
}

// BackingNames lists the accepted backing names.
func BackingNames() []string {
	return []string{"normal", "2M", "1G"}
}

// ParseBacking converts a name into a backing. Unknown names fall back to
// Standard with a warning.
func ParseBacking(name string) Backing {
	switch strings.ToLower(name) {
	case "normal", "standard", "":
		return Standard
	case "2m", "2mb":
		return HugePage2MB
	case "1g", "1gb":
		return HugePage1GB
	}

	klog.Warningf("unknown buffer type %q, using normal pages", name)

	return Standard
}
