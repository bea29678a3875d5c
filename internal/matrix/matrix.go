// Package matrix expands job matrix declarations into concrete legs.
package matrix

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ciq/pipeline-engine/pkg/types"
)

// Leg is one concrete combination of matrix axis values.
type Leg struct {
	// Values maps axis name to the value assigned to this leg.
	Values map[string]any
	// Order lists the axis names in display order.
	Order []string
}

// Name renders the leg as "axis=value, axis=value" in axis order.
func (l Leg) Name() string {
	parts := make([]string, 0, len(l.Order))
	for _, axis := range l.Order {
		parts = append(parts, axis+"="+render(l.Values[axis]))
	}
	return strings.Join(parts, ", ")
}

// Expand expands a matrix into its legs: the cartesian product of the
// declared axes, minus exclude matches, plus include entries that do
// not merge into an existing leg. A nil matrix yields a single empty
// leg. Expansion order is deterministic: axes in declaration order,
// values in declaration order.
func Expand(m *types.Matrix) ([]Leg, error) {
	if m == nil {
		return []Leg{{Values: map[string]any{}}}, nil
	}

	legs := cartesian(m)

	if len(m.Exclude) > 0 {
		kept := legs[:0]
		for _, leg := range legs {
			excluded := false
			for _, rule := range m.Exclude {
				if matches(leg.Values, rule) {
					excluded = true
					break
				}
			}
			if !excluded {
				kept = append(kept, leg)
			}
		}
		legs = kept
	}

	for _, entry := range m.Include {
		if err := validateEntry(entry); err != nil {
			return nil, err
		}
		merged := false
		for i := range legs {
			if matchesAxes(legs[i].Values, entry, m.Axes) {
				// Extend matching legs with the entry's extra keys.
				for k, v := range entry {
					if _, isAxis := legs[i].Values[k]; !isAxis {
						legs[i].Values[k] = v
						legs[i].Order = appendKey(legs[i].Order, k)
					}
				}
				merged = true
			}
		}
		if !merged {
			leg := Leg{Values: make(map[string]any, len(entry))}
			keys := make([]string, 0, len(entry))
			for k := range entry {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				leg.Values[k] = entry[k]
				leg.Order = append(leg.Order, k)
			}
			legs = append(legs, leg)
		}
	}

	return legs, nil
}

// Count returns the number of legs the matrix expands to.
func Count(m *types.Matrix) (int, error) {
	legs, err := Expand(m)
	if err != nil {
		return 0, err
	}
	return len(legs), nil
}

// cartesian produces the cross product of all declared axes.
func cartesian(m *types.Matrix) []Leg {
	if len(m.AxisOrder) == 0 {
		return nil
	}

	total := 1
	for _, axis := range m.AxisOrder {
		total *= len(m.Axes[axis])
	}

	legs := make([]Leg, 0, total)
	indices := make([]int, len(m.AxisOrder))

	for {
		values := make(map[string]any, len(m.AxisOrder))
		for i, axis := range m.AxisOrder {
			values[axis] = m.Axes[axis][indices[i]]
		}
		order := make([]string, len(m.AxisOrder))
		copy(order, m.AxisOrder)
		legs = append(legs, Leg{Values: values, Order: order})

		// Odometer increment, last axis fastest.
		pos := len(indices) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(m.Axes[m.AxisOrder[pos]]) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			return legs
		}
	}
}

// matches reports whether every key of the rule matches the leg.
func matches(values map[string]any, rule map[string]any) bool {
	if len(rule) == 0 {
		return false
	}
	for k, want := range rule {
		have, ok := values[k]
		if !ok || render(have) != render(want) {
			return false
		}
	}
	return true
}

// matchesAxes reports whether the entry's axis-keyed values all match
// the leg. Entry keys outside the declared axes are extension keys and
// do not participate in matching.
func matchesAxes(values map[string]any, entry map[string]any, axes map[string][]any) bool {
	matchedAny := false
	for k, want := range entry {
		if _, isAxis := axes[k]; !isAxis {
			continue
		}
		have, ok := values[k]
		if !ok || render(have) != render(want) {
			return false
		}
		matchedAny = true
	}
	return matchedAny
}

// validateEntry rejects non-scalar include values.
func validateEntry(entry map[string]any) error {
	for k, v := range entry {
		switch v.(type) {
		case string, bool, int, int64, uint64, float64, nil:
		default:
			return fmt.Errorf("matrix include value for %q must be scalar, got %T", k, v)
		}
	}
	return nil
}

func appendKey(order []string, key string) []string {
	for _, existing := range order {
		if existing == key {
			return order
		}
	}
	return append(order, key)
}

// render formats a matrix value the way leg names display it.
func render(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
