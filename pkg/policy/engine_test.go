package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kie-chi/dnsbuilder/pkg/builder"
)

// testEngine creates a policy engine with logging disabled
func testEngine(t *testing.T) *Engine {
	t.Helper()

	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return eng
}

// cleanPlan builds a plan that satisfies every built-in policy
func cleanPlan() *builder.BuildPlan {
	recursor := &builder.Image{Name: "recursor", Software: builder.SoftwareBind, Internal: true}
	return &builder.BuildPlan{
		RunID:   "run-test",
		Project: "lab",
		Subnet:  "172.20.0.0/24",
		Order:   []string{"root", "resolver"},
		Services: map[string]*builder.ServicePlan{
			"root":     {Name: "root", Image: recursor, Address: "172.20.0.10"},
			"resolver": {Name: "resolver", Image: recursor, Address: "172.20.0.3"},
		},
		Images: map[string]*builder.Image{
			"recursor": recursor,
		},
	}
}

// TestNewEngine tests that built-in policies are loaded
func TestNewEngine(t *testing.T) {
	eng := testEngine(t)

	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("no built-in policies loaded")
	}

	expected := []string{"service-naming", "address-uniqueness", "image-pinning"}
	for _, name := range expected {
		if _, err := eng.GetPolicy(name); err != nil {
			t.Errorf("expected built-in policy %s: %v", name, err)
		}
	}

	if _, err := eng.GetPolicy("no-such-policy"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

// TestEvaluateCleanPlan tests that a conforming plan passes
func TestEvaluateCleanPlan(t *testing.T) {
	eng := testEngine(t)

	result, err := eng.EvaluatePlan(context.Background(), cleanPlan())
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Errorf("expected plan to be allowed, violations: %+v", result.Violations)
	}
	if len(result.Violations) != 0 {
		t.Errorf("expected no violations, got %d", len(result.Violations))
	}
	if len(result.EvaluatedPolicies) != 3 {
		t.Errorf("expected 3 evaluated policies, got %d", len(result.EvaluatedPolicies))
	}
}

// TestEvaluateNamingViolation tests the service naming policy
func TestEvaluateNamingViolation(t *testing.T) {
	eng := testEngine(t)

	plan := cleanPlan()
	plan.Services["BadName"] = &builder.ServicePlan{Name: "BadName", Address: "172.20.0.20"}

	result, err := eng.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if result.Allowed {
		t.Error("expected plan to be denied")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "service-naming" && v.Service == "BadName" {
			found = true
			if v.Severity != SeverityError {
				t.Errorf("expected error severity, got %s", v.Severity)
			}
		}
	}
	if !found {
		t.Errorf("expected a service-naming violation for BadName, got %+v", result.Violations)
	}
}

// TestEvaluateDuplicateAddresses tests the address uniqueness policy
func TestEvaluateDuplicateAddresses(t *testing.T) {
	eng := testEngine(t)

	plan := cleanPlan()
	plan.Services["resolver"].Address = "172.20.0.10"

	result, err := eng.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if result.Allowed {
		t.Error("expected plan with duplicate addresses to be denied")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "address-uniqueness" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an address-uniqueness violation, got %+v", result.Violations)
	}
}

// TestEvaluateUnpinnedImage tests that unpinned images warn without blocking
func TestEvaluateUnpinnedImage(t *testing.T) {
	eng := testEngine(t)

	plan := cleanPlan()
	plan.Images["upstream"] = &builder.Image{Name: "upstream", From: "ubuntu"}

	result, err := eng.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Error("expected warnings not to block the plan")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "image-pinning" && v.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an image-pinning warning, got %+v", result.Violations)
	}
}

// TestLoadCustomPolicy tests loading and evaluating a policy from a file
func TestLoadCustomPolicy(t *testing.T) {
	eng := testEngine(t)

	rego := `package custom.policies.projects

import rego.v1

deny contains violation if {
	input.context.project == "forbidden"
	violation := {
		"message": "project name 'forbidden' is reserved",
		"severity": "error",
	}
}
`
	dir := t.TempDir()
	path := filepath.Join(dir, "reserved-project.rego")
	if err := os.WriteFile(path, []byte(rego), 0o644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{path}); err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}

	plan := cleanPlan()
	plan.Project = "forbidden"

	result, err := eng.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if result.Allowed {
		t.Error("expected custom policy to deny the plan")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "reserved-project" && v.Message == "project name 'forbidden' is reserved" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected reserved-project violation, got %+v", result.Violations)
	}
}

// TestEnableDisablePolicy tests toggling policies
func TestEnableDisablePolicy(t *testing.T) {
	eng := testEngine(t)

	plan := cleanPlan()
	plan.Services["BadName"] = &builder.ServicePlan{Name: "BadName", Address: "172.20.0.20"}

	if err := eng.DisablePolicy("service-naming"); err != nil {
		t.Fatalf("failed to disable policy: %v", err)
	}

	result, err := eng.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected disabled policy not to fire, violations: %+v", result.Violations)
	}

	if err := eng.EnablePolicy("service-naming"); err != nil {
		t.Fatalf("failed to enable policy: %v", err)
	}

	result, err = eng.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("expected re-enabled policy to fire")
	}

	if err := eng.DisablePolicy("no-such-policy"); err == nil {
		t.Error("expected error disabling unknown policy")
	}
}

// TestReloadPolicies tests that reload restores the built-in set
func TestReloadPolicies(t *testing.T) {
	eng := testEngine(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "extra.rego")
	rego := "package custom.policies.extra\n\nimport rego.v1\n"
	if err := os.WriteFile(path, []byte(rego), 0o644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
	if err := eng.LoadPolicies(context.Background(), []string{path}); err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}

	if len(eng.ListPolicies()) != 4 {
		t.Fatalf("expected 4 policies after load, got %d", len(eng.ListPolicies()))
	}

	if err := eng.ReloadPolicies(context.Background()); err != nil {
		t.Fatalf("failed to reload policies: %v", err)
	}

	if len(eng.ListPolicies()) != 3 {
		t.Errorf("expected 3 policies after reload, got %d", len(eng.ListPolicies()))
	}
}
