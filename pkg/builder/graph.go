package builder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kie-chi/dnsbuilder/pkg/telemetry"
)

// topologyEdge is one resolution relationship derived from a behavior
// statement.
type topologyEdge struct {
	from  string
	to    string
	label string
}

// TopologyDOT renders the resolution topology of a compiled plan as a
// Graphviz digraph. Services are boxes labelled with their address, targets
// outside the plan are ellipses. Statements that cannot be interpreted are
// skipped with a warning.
func TopologyDOT(plan *BuildPlan, log *telemetry.Logger) string {
	if log == nil {
		log = telemetry.NewDefaultLogger()
	}

	var edges []topologyEdge
	externals := make(map[string]struct{})

	for _, name := range plan.Order {
		svc := plan.Services[name]
		text := behaviorText(svc.Definition)
		if text == "" {
			continue
		}
		stmts, err := ParseBehavior(text)
		if err != nil {
			log.WithService(name).WithError(err).Warn("skipping unparseable behavior")
			continue
		}
		for _, stmt := range stmts {
			for _, target := range topologyTargets(stmt) {
				if _, known := plan.Services[target]; !known {
					externals[target] = struct{}{}
				}
				edges = append(edges, topologyEdge{
					from:  name,
					to:    target,
					label: fmt.Sprintf("%s %s", stmt.Zone, stmt.Kind),
				})
			}
		}
	}

	var b strings.Builder
	b.WriteString("digraph topology {\n")
	b.WriteString("\trankdir=LR;\n")
	for _, name := range plan.Order {
		fmt.Fprintf(&b, "\t%q [shape=box, label=\"%s\\n%s\"];\n", name, name, plan.Services[name].Address)
	}
	for _, name := range sortedKeys(externals) {
		fmt.Fprintf(&b, "\t%q [shape=ellipse];\n", name)
	}
	for _, e := range edges {
		fmt.Fprintf(&b, "\t%q -> %q [label=%q];\n", e.from, e.to, e.label)
	}
	b.WriteString("}\n")
	return b.String()
}

// topologyTargets filters a statement's targets down to the ones that name a
// resolution dependency.
func topologyTargets(stmt Statement) []string {
	switch stmt.Kind {
	case BehaviorForward, BehaviorHint, BehaviorStub:
		return stmt.Targets
	case BehaviorMaster:
		// Master data is served locally; A and NS targets that name
		// services still describe where resolution continues.
		if stmt.RType == "NS" {
			return stmt.Targets
		}
		return nil
	default:
		return nil
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
