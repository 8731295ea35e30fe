package builder

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestBuildErrorRendering tests message formatting with context fields and
// a wrapped cause.
func TestBuildErrorRendering(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := NewBehaviorError("bad statement", cause).WithService("recursor").WithLine(3)

	msg := err.Error()
	for _, want := range []string{"[behavior]", "bad statement", "boom", "service=recursor", "line=3"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
}

// TestBuildErrorClassification tests kind matching through wrapping.
func TestBuildErrorClassification(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewCycleError("a -> b -> a", nil))
	if !IsCycle(err) {
		t.Error("IsCycle should see through wrapping")
	}
	if IsReference(err) {
		t.Error("IsReference should not match a cycle error")
	}
	if KindOf(err) != ErrorKindCycle {
		t.Errorf("expected cycle kind, got %v", KindOf(err))
	}
	if KindOf(fmt.Errorf("plain")) != ErrorKindInternal {
		t.Error("unclassified errors default to internal")
	}
}
