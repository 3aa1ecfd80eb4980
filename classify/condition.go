package classify

import (
	"fmt"
	"math/bits"
	"strings"
)

// Condition is a policy flag that promotes an otherwise benign response shape
// into an error.
type Condition uint32

const (
	// NullResponse turns a successful response without a body into a NullDataError.
	NullResponse Condition = 1 << iota
	// EmptyCollection turns a successful response whose body is an empty slice,
	// array or map into an EmptyCollectionError.
	EmptyCollection
)

// Conditions lists every known condition in declaration order.
var Conditions = []Condition{NullResponse, EmptyCollection}

func (c Condition) String() string {
	switch c {
	case NullResponse:
		return "null_response"
	case EmptyCollection:
		return "empty_collection"
	default:
		return fmt.Sprintf("condition(%d)", uint32(c))
	}
}

// ParseCondition parses a condition name such as "null_response".
// Matching is case-insensitive and accepts "-" in place of "_".
func ParseCondition(s string) (Condition, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch norm {
	case "null_response", "null":
		return NullResponse, nil
	case "empty_collection", "empty_list", "empty":
		return EmptyCollection, nil
	default:
		return 0, fmt.Errorf("simplecall: unknown condition %q", s)
	}
}

func (c Condition) MarshalText() ([]byte, error) {
	if bits.OnesCount32(uint32(c)) != 1 {
		return nil, fmt.Errorf("simplecall: invalid condition %d", uint32(c))
	}
	return []byte(c.String()), nil
}

func (c *Condition) UnmarshalText(text []byte) error {
	parsed, err := ParseCondition(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ConditionSet is a set of conditions. The zero value is the empty set.
//
// Only membership matters: including a present condition or excluding an
// absent one has no effect.
type ConditionSet struct {
	mask uint32
}

// NewConditionSet returns a set holding conds.
func NewConditionSet(conds ...Condition) ConditionSet {
	var s ConditionSet
	for _, c := range conds {
		s.Include(c)
	}
	return s
}

// Include adds c to the set.
func (s *ConditionSet) Include(c Condition) {
	s.mask |= uint32(c)
}

// Exclude removes c from the set.
func (s *ConditionSet) Exclude(c Condition) {
	s.mask &^= uint32(c)
}

// Has reports whether every bit of c is in the set.
func (s ConditionSet) Has(c Condition) bool {
	return c != 0 && s.mask&uint32(c) == uint32(c)
}

// Clone returns an independent copy of s.
func (s ConditionSet) Clone() ConditionSet { return s }

// Len returns the number of conditions in the set.
func (s ConditionSet) Len() int {
	return bits.OnesCount32(s.mask)
}

// List returns the members in declaration order.
func (s ConditionSet) List() []Condition {
	out := make([]Condition, 0, s.Len())
	for i := 0; i < 32; i++ {
		c := Condition(1 << i)
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s ConditionSet) String() string {
	names := make([]string, 0, s.Len())
	for _, c := range s.List() {
		names = append(names, c.String())
	}
	return "[" + strings.Join(names, ",") + "]"
}
