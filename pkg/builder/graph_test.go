package builder

import (
	"context"
	"strings"
	"testing"
)

// TestTopologyDOT tests the rendered resolution graph of a compiled plan.
func TestTopologyDOT(t *testing.T) {
	doc := testDoc(t, `
name: lab
inet: 172.20.0.0/24
images:
  recursor:
    software: bind
builds:
  recursor:
    image: recursor
    behavior: |
      . forward 8.8.8.8
      corp forward auth
  auth:
    image: recursor
    behavior: "corp master www A auth"
`)
	plan, err := testPipeline(doc).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	dot := TopologyDOT(plan, nil)
	if !strings.HasPrefix(dot, "digraph topology {") {
		t.Fatalf("unexpected dot prefix:\n%s", dot)
	}
	if !strings.Contains(dot, "rankdir=LR;") {
		t.Error("expected left-to-right layout")
	}
	if !strings.Contains(dot, `"recursor" [shape=box, label="recursor\n`+plan.Service("recursor").Address+`"];`) {
		t.Errorf("expected recursor box with address:\n%s", dot)
	}
	if !strings.Contains(dot, `"8.8.8.8" [shape=ellipse];`) {
		t.Errorf("expected external ellipse node:\n%s", dot)
	}
	if !strings.Contains(dot, `"recursor" -> "auth" [label="corp forward"];`) {
		t.Errorf("expected labelled edge to auth:\n%s", dot)
	}
}
