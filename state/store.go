// Package state holds the orchestration selection shared by every frame.
package state

import (
	"sync"

	"github.com/pithecene-io/framehub/log"
)

// Key names a field of the orchestration state.
type Key string

// Known state keys. These are the wire names used by Set.
const (
	KeySelectedExecutionUnit Key = "selectedExecutionUnit"
	KeySelectedPackage       Key = "selectedPackage"
)

// State is the current selection. A nil field is null.
type State struct {
	SelectedExecutionUnit *string `json:"selectedExecutionUnit" yaml:"selectedExecutionUnit"`
	SelectedPackage       *string `json:"selectedPackage" yaml:"selectedPackage"`
}

// Partial is a shallow update. A present key with a nil value sets null.
type Partial map[Key]*string

// Str returns a pointer to s, for building Partials.
func Str(s string) *string {
	return &s
}

// clone returns a deep copy of s.
func (s State) clone() State {
	return State{
		SelectedExecutionUnit: copyStr(s.SelectedExecutionUnit),
		SelectedPackage:       copyStr(s.SelectedPackage),
	}
}

func copyStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// deref renders a possibly-null value for logs.
func deref(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// Store is the single shared state record. Last write wins.
type Store struct {
	mu     sync.RWMutex
	state  State
	logger *log.Logger
}

// NewStore creates a store with both selections null.
func NewStore(logger *log.Logger) *Store {
	return &Store{logger: log.OrNop(logger)}
}

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Value returns a copy of one key's value. Unknown keys return nil.
func (s *Store) Value(key Key) *string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch key {
	case KeySelectedExecutionUnit:
		return copyStr(s.state.SelectedExecutionUnit)
	case KeySelectedPackage:
		return copyStr(s.state.SelectedPackage)
	default:
		return nil
	}
}

// Set merges update into the state. Keys absent from update keep their value.
// Unknown keys are skipped with a warning.
func (s *Store) Set(update Partial) State {
	s.mu.Lock()
	for key, value := range update {
		switch key {
		case KeySelectedExecutionUnit:
			s.state.SelectedExecutionUnit = copyStr(value)
		case KeySelectedPackage:
			s.state.SelectedPackage = copyStr(value)
		default:
			s.logger.Warn("ignoring unknown state key", map[string]any{
				"key": string(key),
			})
		}
	}
	next := s.state.clone()
	s.mu.Unlock()

	s.logger.Debug("state updated", map[string]any{
		"selectedExecutionUnit": deref(next.SelectedExecutionUnit),
		"selectedPackage":       deref(next.SelectedPackage),
	})
	return next
}

// SetSelectedExecutionUnit records the selected execution unit.
func (s *Store) SetSelectedExecutionUnit(name string) State {
	return s.Set(Partial{KeySelectedExecutionUnit: Str(name)})
}

// SetSelectedPackage records the selected package.
func (s *Store) SetSelectedPackage(name string) State {
	return s.Set(Partial{KeySelectedPackage: Str(name)})
}

// Clear resets both selections to null.
func (s *Store) Clear() State {
	return s.Set(Partial{KeySelectedExecutionUnit: nil, KeySelectedPackage: nil})
}
