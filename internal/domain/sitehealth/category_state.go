package sitehealth

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CategoryState tracks the progress of one category within a run.
type CategoryState string

const (
	CategoryPending   CategoryState = "pending"
	CategoryRunning   CategoryState = "running"
	CategoryCompleted CategoryState = "completed"
	CategoryFailed    CategoryState = "failed"
)

// String returns the wire name of the state.
func (s CategoryState) String() string { return string(s) }

// ParseCategoryState converts a wire name into a CategoryState.
func ParseCategoryState(s string) (CategoryState, error) {
	switch CategoryState(s) {
	case CategoryPending, CategoryRunning, CategoryCompleted, CategoryFailed:
		return CategoryState(s), nil
	default:
		return "", fmt.Errorf("unknown category state %q", s)
	}
}

// CanTransitionTo reports whether moving from s to target changes the state.
// Completed never regresses to pending or running, and failed is terminal.
// A completed category may still be marked failed by a later probe.
func (s CategoryState) CanTransitionTo(target CategoryState) bool {
	switch s {
	case CategoryPending:
		return target == CategoryRunning || target == CategoryCompleted || target == CategoryFailed
	case CategoryRunning:
		return target == CategoryCompleted || target == CategoryFailed
	case CategoryCompleted:
		return target == CategoryFailed
	default:
		return false
	}
}

// CategoryProgress pairs a category with its state.
type CategoryProgress struct {
	Category Category
	State    CategoryState
}

// CategoryStates is the ordered category to state mapping of a run. The
// order is the declared scan order and is preserved on the wire.
type CategoryStates []CategoryProgress

// NewCategoryStates returns every category in order, all pending.
func NewCategoryStates(order []Category) CategoryStates {
	cs := make(CategoryStates, 0, len(order))
	for _, c := range order {
		if _, ok := cs.Get(c); ok {
			continue
		}
		cs = append(cs, CategoryProgress{Category: c, State: CategoryPending})
	}
	return cs
}

// Get returns the state of c.
func (cs CategoryStates) Get(c Category) (CategoryState, bool) {
	for _, p := range cs {
		if p.Category == c {
			return p.State, true
		}
	}
	return "", false
}

// Advance moves c to target when allowed and reports whether it changed.
// Untracked categories are appended in pending state first.
func (cs *CategoryStates) Advance(c Category, target CategoryState) bool {
	for i := range *cs {
		p := &(*cs)[i]
		if p.Category != c {
			continue
		}
		if !p.State.CanTransitionTo(target) {
			return false
		}
		p.State = target
		return true
	}
	if !CategoryPending.CanTransitionTo(target) {
		*cs = append(*cs, CategoryProgress{Category: c, State: CategoryPending})
		return false
	}
	*cs = append(*cs, CategoryProgress{Category: c, State: target})
	return true
}

// Count returns how many categories are in state s.
func (cs CategoryStates) Count(s CategoryState) int {
	n := 0
	for _, p := range cs {
		if p.State == s {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (cs CategoryStates) Clone() CategoryStates {
	if cs == nil {
		return nil
	}
	out := make(CategoryStates, len(cs))
	copy(out, cs)
	return out
}

// MarshalJSON encodes the states as a JSON object in scan order.
func (cs CategoryStates) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range cs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(string(p.Category))
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(string(p.State))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the key order. null and an
// empty array decode to no states.
func (cs *CategoryStates) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "null", "[]":
		*cs = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("category state: expected object")
	}

	out := CategoryStates{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("category state: expected string key")
		}
		var raw string
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		state, err := ParseCategoryState(raw)
		if err != nil {
			return err
		}
		out = append(out, CategoryProgress{Category: Category(key), State: state})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*cs = out
	return nil
}
