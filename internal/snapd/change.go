package snapd

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Change is a snapshot of a long-running daemon operation.
type Change struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Summary   string    `json:"summary"`
	Status    string    `json:"status"`
	Ready     bool      `json:"ready"`
	Tasks     []Task    `json:"tasks,omitempty"`
	SpawnTime time.Time `json:"spawn-time"`
	ReadyTime time.Time `json:"ready-time"`
}

// Task is one step of a change.
type Task struct {
	ID        string       `json:"id"`
	Kind      string       `json:"kind"`
	Summary   string       `json:"summary"`
	Status    string       `json:"status"`
	Progress  TaskProgress `json:"progress"`
	SpawnTime time.Time    `json:"spawn-time"`
	ReadyTime time.Time    `json:"ready-time"`
}

// TaskProgress reports how far a task has come.
type TaskProgress struct {
	Label string `json:"label"`
	Done  int64  `json:"done"`
	Total int64  `json:"total"`
}

// Fraction returns done/total clamped to [0, 1], or 0 when total is unknown.
func (p TaskProgress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Done) / float64(p.Total)
	return min(max(f, 0), 1)
}

// Equal reports whether two snapshots carry identical content, including
// every task in order.
func (c *Change) Equal(o *Change) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.ID != o.ID || c.Kind != o.Kind || c.Summary != o.Summary ||
		c.Status != o.Status || c.Ready != o.Ready ||
		!c.SpawnTime.Equal(o.SpawnTime) || !c.ReadyTime.Equal(o.ReadyTime) {
		return false
	}
	return slices.EqualFunc(c.Tasks, o.Tasks, Task.equal)
}

func (t Task) equal(o Task) bool {
	return t.ID == o.ID && t.Kind == o.Kind && t.Summary == o.Summary &&
		t.Status == o.Status && t.Progress == o.Progress &&
		t.SpawnTime.Equal(o.SpawnTime) && t.ReadyTime.Equal(o.ReadyTime)
}

// Clone returns a deep copy of the snapshot.
func (c *Change) Clone() *Change {
	if c == nil {
		return nil
	}
	out := *c
	out.Tasks = slices.Clone(c.Tasks)
	return &out
}

// changeResult is the wire form of a change, including the fields that are
// only meaningful once it is ready.
type changeResult struct {
	Change
	Err  string          `json:"err,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func decodeChange(raw json.RawMessage) (*changeResult, error) {
	var cr changeResult
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("decode change: %w", err)
	}
	if cr.ID == "" {
		return nil, fmt.Errorf("decode change: missing id")
	}
	return &cr, nil
}
