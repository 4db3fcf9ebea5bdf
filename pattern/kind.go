package pattern

import (
	"strings"

	"k8s.io/klog/v2"
)

// Kind selects how aggressors are placed around a random address.
type Kind int

// The hammering patterns.
const (
	Single Kind = iota
	Decoy
	Double
	Quad
	ManySided
)

var kindNames = map[Kind]string{
	Single:    "single",
	Decoy:     "decoy",
	Double:    "double",
	Quad:      "quad",
	ManySided: "many-sided",
}

func (k Kind) String() string {
	name, ok := kindNames[k]
	if !ok {
		return "unknown"
	}

	return name
}

// DefaultKind is used when a pattern name is not recognized.
const DefaultKind = Quad

// KindNames lists the accepted pattern names.
func KindNames() []string {
	return []string{"single", "decoy", "double", "quad", "many-sided"}
}

// ParseKind converts a name into a pattern kind. Unknown names fall back to
// DefaultKind with a warning.
func ParseKind(name string) Kind {
	n := strings.ToLower(name)
	if n == "many" || n == "manysided" {
		return ManySided
	}

	for k, kn := range kindNames {
		if kn == n {
			return k
		}
	}

	klog.Warningf("unknown hammer pattern %q, falling back to %s",
		name, DefaultKind)

	return DefaultKind
}
