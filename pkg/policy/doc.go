// Package policy provides Open Policy Agent (OPA) integration for the
// DNS topology compiler.
//
// Policies are Rego deny rules evaluated against the final build plan just
// before artifacts are rendered. Built-in policies cover service naming,
// address uniqueness, and image pinning; custom rules can be loaded from
// .rego or .json files.
//
// # Usage
//
// Creating a policy engine and evaluating a plan:
//
//	logger := zerolog.New(os.Stdout)
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := eng.EvaluatePlan(ctx, plan)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Allowed {
//	    for _, violation := range result.Violations {
//	        fmt.Printf("policy %s violated: %s\n", violation.Policy, violation.Message)
//	    }
//	}
//
// Loading custom policies:
//
//	err = eng.LoadPolicies(ctx, []string{"./policies", "./extra.rego"})
//
// # Custom Policies
//
// A custom rule sees the plan under input.plan and evaluation context under
// input.context:
//
//	package custom.policies.recursors
//
//	import rego.v1
//
//	deny contains violation if {
//	    some name
//	    svc := input.plan.services[name]
//	    svc.image.software == "bind"
//	    count(svc.fragments) == 0
//	    violation := {
//	        "message": sprintf("bind service '%s' declares no zones", [name]),
//	        "severity": "warning",
//	        "service": name,
//	    }
//	}
//
// A deny result may be a plain string or an object with message, severity,
// and service keys. Any violation of error or critical severity marks the
// plan as not allowed.
//
// Policies are compiled once and reused across evaluations.
package policy
