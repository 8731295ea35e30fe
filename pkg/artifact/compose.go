package artifact

import (
	"context"
	"fmt"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/kie-chi/dnsbuilder/pkg/builder"
	"github.com/kie-chi/dnsbuilder/pkg/config"
)

// networkName is the single bridge network all services attach to.
const networkName = "app_net"

// defaultCapAdd is applied when a definition does not override cap_add.
// NET_ADMIN lets the test harness reshape interfaces and routes inside
// the containers.
var defaultCapAdd = []string{"NET_ADMIN"}

type composeService struct {
	ContainerName string                    `yaml:"container_name"`
	Hostname      string                    `yaml:"hostname"`
	Build         string                    `yaml:"build,omitempty"`
	Image         string                    `yaml:"image,omitempty"`
	Networks      map[string]serviceNetwork `yaml:"networks"`
	Volumes       []string                  `yaml:"volumes,omitempty"`
	CapAdd        []string                  `yaml:"cap_add"`
	Extra         map[string]any            `yaml:",inline"`
}

type serviceNetwork struct {
	IPv4Address string `yaml:"ipv4_address"`
}

type composeFile struct {
	Name     string                    `yaml:"name"`
	Services map[string]composeService `yaml:"services"`
	Networks map[string]composeNetwork `yaml:"networks"`
}

type composeNetwork struct {
	Driver string     `yaml:"driver"`
	IPAM   ipamConfig `yaml:"ipam"`
}

type ipamConfig struct {
	Config []subnetConfig `yaml:"config"`
}

type subnetConfig struct {
	Subnet string `yaml:"subnet"`
}

// renderCompose marshals the compose descriptor for a plan and its
// per-service entries.
func renderCompose(plan *builder.BuildPlan, services map[string]composeService) ([]byte, error) {
	doc := composeFile{
		Name:     plan.Project,
		Services: services,
		Networks: map[string]composeNetwork{
			networkName: {
				Driver: "bridge",
				IPAM:   ipamConfig{Config: []subnetConfig{{Subnet: plan.Subnet}}},
			},
		},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal compose descriptor: %w", err)
	}
	return out, nil
}

// validateCompose runs the rendered descriptor through the compose-spec
// loader so schema mistakes surface at build time instead of at docker
// compose up.
func validateCompose(ctx context.Context, project string, content []byte) error {
	var dict map[string]any
	if err := yaml.Unmarshal(content, &dict); err != nil {
		return fmt.Errorf("generated compose descriptor is not valid YAML: %w", err)
	}
	_, err := loader.LoadWithContext(ctx, types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{Filename: "docker-compose.yml", Content: content, Config: dict},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName(project, false)
		opts.SkipInterpolation = true
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return fmt.Errorf("generated compose descriptor failed validation: %w", err)
	}
	return nil
}

// capAddOf reads a cap_add override from a service definition, falling back
// to the default capability set.
func capAddOf(def *config.Value) []string {
	if def == nil {
		return defaultCapAdd
	}
	v, ok := def.Get("cap_add")
	if !ok || v.Kind() != config.KindSequence {
		return defaultCapAdd
	}
	caps := make([]string, 0, v.Len())
	for _, e := range v.Elems() {
		caps = append(caps, e.Text())
	}
	if len(caps) == 0 {
		return defaultCapAdd
	}
	return caps
}

// passthroughKeys lifts the non-reserved definition keys into the compose
// service entry so environment, ports, dns and friends survive compilation.
func passthroughKeys(def *config.Value) map[string]any {
	if def == nil {
		return nil
	}
	m, ok := def.ToGo().(map[string]any)
	if !ok {
		return nil
	}
	for key := range config.ReservedBuildKeys {
		delete(m, key)
	}
	// Keys the compiler owns outright; a definition cannot override them.
	for _, key := range []string{"container_name", "hostname", "networks"} {
		delete(m, key)
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
