package workflow

import (
	"fmt"
	"sync"

	"dario.cat/mergo"

	"github.com/BaSui01/labelflow/models"
)

// State is the accumulating map shared by the nodes of one graph run. Node
// outputs live under models.OutputKey(nodeID), so concurrent branches never
// write the same key.
type State struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewState creates an empty state.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// SetOutput records the output ids of nodeID.
func (s *State) SetOutput(nodeID string, ids []uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[models.OutputKey(nodeID)] = append([]uint{}, ids...)
}

// Output returns the output ids of nodeID, if it has completed.
func (s *State) Output(nodeID string) ([]uint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.values[models.OutputKey(nodeID)].([]uint)
	if !ok {
		return nil, false
	}
	return append([]uint{}, ids...), true
}

// Merge folds update into the state. Leaves are last-write-wins; nested maps
// are merged key by key, so sibling keys survive.
func (s *State) Merge(update map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := deepMerge(s.values, update)
	if err != nil {
		return err
	}
	s.values = merged
	return nil
}

// Snapshot returns a deep copy of the state.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneValue(s.values).(map[string]any)
}

// MergeParams overlays override onto base and returns a new map. Neither
// input is modified.
func MergeParams(base, override map[string]any) (map[string]any, error) {
	return deepMerge(base, override)
}

func deepMerge(dst, src map[string]any) (map[string]any, error) {
	out, _ := cloneValue(dst).(map[string]any)
	if out == nil {
		out = make(map[string]any)
	}
	if len(src) == 0 {
		return out, nil
	}
	// mergo writes into nested maps of both sides; work on copies only
	overlay, _ := cloneValue(src).(map[string]any)
	if err := mergo.Merge(&out, overlay, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge state: %w", err)
	}
	return out, nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return map[string]any{}
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []uint:
		return append([]uint{}, t...)
	default:
		return v
	}
}
