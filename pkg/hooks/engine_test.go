package hooks

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kie-chi/dnsbuilder/pkg/config"
	"github.com/kie-chi/dnsbuilder/pkg/fsio"
)

func testConfig(t *testing.T, text string) *config.Value {
	t.Helper()
	v, err := config.FromYAML([]byte(text))
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	return v
}

// TestRunModifyResult tests that an assigned result replaces the definition.
func TestRunModifyResult(t *testing.T) {
	e := NewEngine(nil)
	def := testConfig(t, "image: recursor\n")

	script := `
result = dict(config)
result["cap_add"] = ["NET_ADMIN"]
`
	out, err := e.RunModify(context.Background(), script, "recursor", def)
	if err != nil {
		t.Fatalf("run modify: %v", err)
	}
	caps, ok := out.Get("cap_add")
	if !ok || caps.Len() != 1 {
		t.Errorf("expected cap_add in result, got %v", out.Project())
	}
	if got, _ := out.Get("image"); got.Text() != "recursor" {
		t.Error("existing keys should carry over")
	}
}

// TestRunModifyInPlaceMutation tests that mutating the config global works
// without assigning result.
func TestRunModifyInPlaceMutation(t *testing.T) {
	e := NewEngine(nil)
	def := testConfig(t, "image: recursor\n")

	out, err := e.RunModify(context.Background(), `config["address"] = "172.20.0.9"`, "recursor", def)
	if err != nil {
		t.Fatalf("run modify: %v", err)
	}
	addr, _ := out.Get("address")
	if addr.Text() != "172.20.0.9" {
		t.Errorf("expected in-place mutation to stick, got %v", out.Project())
	}
}

// TestRunModifySeesServiceName tests the service_name global.
func TestRunModifySeesServiceName(t *testing.T) {
	e := NewEngine(nil)
	def := testConfig(t, "image: recursor\n")

	out, err := e.RunModify(context.Background(), `config["hostname"] = service_name`, "auth", def)
	if err != nil {
		t.Fatalf("run modify: %v", err)
	}
	hostname, _ := out.Get("hostname")
	if hostname.Text() != "auth" {
		t.Errorf("expected service_name to be predeclared, got %v", out.Project())
	}
}

// TestRunValidate tests truthy, falsy and message-carrying results.
func TestRunValidate(t *testing.T) {
	e := NewEngine(nil)
	def := testConfig(t, "image: recursor\ncap_add: [NET_ADMIN]\n")

	if err := e.RunValidate(context.Background(), `result = "cap_add" in config`, "svc", def); err != nil {
		t.Errorf("expected pass, got %v", err)
	}
	if err := e.RunValidate(context.Background(), `result = False`, "svc", def); err == nil {
		t.Error("expected falsy result to reject")
	}
	err := e.RunValidate(context.Background(), "result = False\nmessage = \"needs NET_RAW\"", "svc", def)
	if err == nil || !strings.Contains(err.Error(), "needs NET_RAW") {
		t.Errorf("expected the message in the error, got %v", err)
	}
	// No result at all passes.
	if err := e.RunValidate(context.Background(), `x = 1`, "svc", def); err != nil {
		t.Errorf("expected missing result to pass, got %v", err)
	}
}

// TestRunSetup tests document-level rewriting.
func TestRunSetup(t *testing.T) {
	e := NewEngine(nil)
	doc := testConfig(t, `
name: lab
inet: 172.20.0.0/24
builds:
  recursor:
    image: recursor
`)
	script := `
builds = config["builds"]
builds["client"] = {"image": "client"}
`
	out, err := e.RunSetup(context.Background(), script, doc)
	if err != nil {
		t.Fatalf("run setup: %v", err)
	}
	builds, _ := out.Get("builds")
	if _, ok := builds.Get("client"); !ok {
		t.Errorf("expected setup hook to add a service, got %v", out.Project())
	}
}

// TestScriptErrors tests syntax errors and timeouts surfacing as errors.
func TestScriptErrors(t *testing.T) {
	def := testConfig(t, "image: recursor\n")

	e := NewEngine(nil)
	if _, err := e.RunModify(context.Background(), `def broken(`, "svc", def); err == nil {
		t.Error("expected a syntax error")
	}

	slow := NewEngine(nil, WithTimeout(50*time.Millisecond))
	script := `
def spin():
    x = 0
    for i in range(1000000000):
        x += i
    return x

y = spin()
`
	if _, err := slow.RunModify(context.Background(), script, "svc", def); err == nil {
		t.Error("expected a timeout")
	} else if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected a timeout error, got %v", err)
	}
}

// TestLoadScriptURI tests loading a script through the filesystem router.
func TestLoadScriptURI(t *testing.T) {
	router := fsio.NewRouter()
	p, err := fsio.Parse("mem:///hooks/add_cap.star")
	if err != nil {
		t.Fatalf("parse path: %v", err)
	}
	if err := router.WriteText(p, `config["cap_add"] = ["NET_ADMIN"]`); err != nil {
		t.Fatalf("write script: %v", err)
	}

	e := NewEngine(router)
	out, err := e.RunModify(context.Background(), "mem:///hooks/add_cap.star", "svc", testConfig(t, "image: recursor\n"))
	if err != nil {
		t.Fatalf("run modify: %v", err)
	}
	if _, ok := out.Get("cap_add"); !ok {
		t.Error("expected the loaded script to run")
	}
}
