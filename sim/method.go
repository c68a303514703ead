package sim

import (
	"fmt"
	"strings"
)

// Method picks who makes the player's decisions during a simulation.
type Method int

const (
	// MethodCompare plays the exact decision and compares it against the
	// chart at every decision point.
	MethodCompare Method = iota
	// MethodExact plays the exact decision with no chart.
	MethodExact
	// MethodReference plays the chart only.
	MethodReference
)

var methodNames = map[Method]string{
	MethodCompare:   "compare",
	MethodExact:     "exact",
	MethodReference: "reference",
}

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

func ParseMethod(s string) (Method, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range methodNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown method %q (want exact, reference or compare)", s)
}

func (m Method) usesExact() bool {
	return m == MethodCompare || m == MethodExact
}

func (m Method) usesChart() bool {
	return m == MethodCompare || m == MethodReference
}
