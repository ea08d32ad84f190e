package core

import (
	"strings"
	"testing"
)

// TestTaskID_StringAndIsZero verifies TaskID zero-state and string behavior
// Given: A zero TaskID and a generated TaskID
// When: IsZero and String are called
// Then: Zero ID reports true and generated ID is non-zero with non-empty string
func TestTaskID_StringAndIsZero(t *testing.T) {
	// Arrange
	var zero TaskID

	// Act and Assert
	if !zero.IsZero() {
		t.Fatal("zero TaskID should report IsZero() == true")
	}

	// Act
	id := GenerateTaskID()

	// Assert
	if id.IsZero() {
		t.Fatal("generated TaskID should not be zero")
	}
	if id.String() == "" {
		t.Fatal("TaskID.String() should not be empty")
	}
	if other := GenerateTaskID(); other == id {
		t.Fatal("two generated TaskIDs should differ")
	}
}

// TestTaskFunc_Run verifies the adapter forwards the flag unchanged
func TestTaskFunc_Run(t *testing.T) {
	var got []bool
	var task Task = TaskFunc(func(isGPUDisabled bool) {
		got = append(got, isGPUDisabled)
	})

	task.Run(true)
	task.Run(false)

	if len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("observed flags = %v, want [true false]", got)
	}
}

type namedTask struct{}

func (namedTask) Run(bool) {}

func rasterLayer(bool) {}

// TestResolveTaskName verifies naming precedence for history records
func TestResolveTaskName(t *testing.T) {
	if got := resolveTaskName(namedTask{}, "explicit"); got != "explicit" {
		t.Errorf("explicit name = %q", got)
	}
	if got := resolveTaskName(TaskFunc(rasterLayer), ""); !strings.HasSuffix(got, ".rasterLayer") {
		t.Errorf("func name = %q, want suffix .rasterLayer", got)
	}
	if got := resolveTaskName(namedTask{}, ""); got != "core.namedTask" {
		t.Errorf("type name = %q, want core.namedTask", got)
	}
	if got := resolveTaskName(nil, ""); got != "anonymous" {
		t.Errorf("nil task name = %q, want anonymous", got)
	}
}

// TestExecutionHistory_Ring verifies the ring buffer keeps the newest records
func TestExecutionHistory_Ring(t *testing.T) {
	h := newExecutionHistory(3)
	if _, ok := h.Last(); ok {
		t.Fatal("Last() on empty history = true")
	}
	if got := h.Recent(0); got != nil {
		t.Fatalf("Recent(0) on empty history = %v", got)
	}

	for _, name := range []string{"a", "b", "c", "d"} {
		h.Add(TaskExecutionRecord{Name: name})
	}

	recent := h.Recent(0)
	if len(recent) != 3 || recent[0].Name != "d" || recent[1].Name != "c" || recent[2].Name != "b" {
		t.Fatalf("Recent(0) = %+v, want d, c, b", recent)
	}
	if got := h.Recent(1); len(got) != 1 || got[0].Name != "d" {
		t.Fatalf("Recent(1) = %+v", got)
	}
	if last, ok := h.Last(); !ok || last.Name != "d" {
		t.Fatalf("Last() = %+v, %v", last, ok)
	}
}
