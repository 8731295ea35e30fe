package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		serviceNamingPolicy(),
		addressUniquenessPolicy(),
		imagePinningPolicy(),
	}
}

// serviceNamingPolicy enforces service naming conventions. Service names
// become container hostnames, so they must be valid DNS labels.
func serviceNamingPolicy() Policy {
	return Policy{
		Name:        "service-naming",
		Description: "Enforces service naming conventions (lowercase, alphanumeric, hyphens only)",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package dnsb.policies.naming

import rego.v1

# Service names must be lowercase
deny contains violation if {
	some name
	input.plan.services[name]
	lower(name) != name
	violation := {
		"message": sprintf("service name '%s' must be lowercase", [name]),
		"severity": "error",
		"service": name,
	}
}

# Alphanumeric and hyphens only
deny contains violation if {
	some name
	input.plan.services[name]
	not regex.match("^[a-zA-Z0-9-]+$", name)
	violation := {
		"message": sprintf("service name '%s' must contain only letters, numbers, and hyphens", [name]),
		"severity": "error",
		"service": name,
	}
}

# Must not start or end with a hyphen
deny contains violation if {
	some name
	input.plan.services[name]
	regex.match("^-|-$", name)
	violation := {
		"message": sprintf("service name '%s' must not start or end with a hyphen", [name]),
		"severity": "error",
		"service": name,
	}
}
`,
	}
}

// addressUniquenessPolicy rejects plans where two services ended up on the
// same address. The allocator prevents this for managed subnets, so a hit
// here means a static assignment collided.
func addressUniquenessPolicy() Policy {
	return Policy{
		Name:        "address-uniqueness",
		Description: "Rejects plans where two services share an IPv4 address",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"network"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package dnsb.policies.addressing

import rego.v1

deny contains violation if {
	some a, b
	addr := input.plan.services[a].address
	addr != ""
	input.plan.services[b].address == addr
	a < b
	violation := {
		"message": sprintf("services '%s' and '%s' share address %s", [a, b, addr]),
		"severity": "error",
		"service": b,
	}
}
`,
	}
}

// imagePinningPolicy warns about external image references without a tag.
func imagePinningPolicy() Policy {
	return Policy{
		Name:        "image-pinning",
		Description: "Warns when an external image reference does not pin a tag",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"images"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package dnsb.policies.images

import rego.v1

deny contains violation if {
	some name
	img := input.plan.images[name]
	not img.internal
	not contains(img.from, ":")
	violation := {
		"message": sprintf("image '%s' uses unpinned reference '%s'", [name, img.from]),
		"severity": "warning",
	}
}
`,
	}
}
