package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Loader reads policy definitions from the filesystem. Policies arrive as
// raw .rego modules or as JSON documents carrying a full Policy, and a path
// may name either a single file or a directory tree of them. A Loader is
// built per load; the engine holds the compiled result, not the loader.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{logger: logger.With().Str("component", "policy-loader").Logger()}
}

// LoadFromPaths loads every policy reachable from the given file or
// directory paths, in path order.
func (l *Loader) LoadFromPaths(_ context.Context, paths []string) ([]Policy, error) {
	var policies []Policy

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("policy path %s: %w", path, err)
		}
		if !info.IsDir() {
			p, err := l.loadFile(path)
			if err != nil {
				return nil, err
			}
			policies = append(policies, *p)
			continue
		}

		walkErr := filepath.WalkDir(path, func(entry string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !policyFile(entry) {
				return nil
			}
			p, err := l.loadFile(entry)
			if err != nil {
				l.logger.Warn().Err(err).Str("path", entry).Msg("Skipping unreadable policy file")
				return nil
			}
			policies = append(policies, *p)
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("policy directory %s: %w", path, walkErr)
		}
	}

	l.logger.Info().
		Int("total", len(policies)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")

	return policies, nil
}

// policyFile reports whether a path looks like a loadable policy.
func policyFile(path string) bool {
	return strings.HasSuffix(path, ".rego") || strings.HasSuffix(path, ".json")
}

// loadFile parses one policy file by extension.
func (l *Loader) loadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}

	var policy *Policy
	switch {
	case strings.HasSuffix(path, ".rego"):
		policy = regoPolicy(path, data)
	case strings.HasSuffix(path, ".json"):
		policy, err = jsonPolicy(data)
		if err != nil {
			return nil, fmt.Errorf("parse policy %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported policy file type: %s", path)
	}

	l.logger.Debug().
		Str("path", path).
		Str("policy", policy.Name).
		Msg("Policy loaded from file")

	return policy, nil
}

// regoPolicy wraps a bare rego module as an enabled error-severity policy.
// The name comes from the file name, the description from leading comments.
func regoPolicy(path string, data []byte) *Policy {
	now := time.Now()
	return &Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: leadingComment(string(data)),
		Rego:        string(data),
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{},
		Metadata:    map[string]interface{}{"source": path},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// jsonPolicy decodes a JSON policy document, filling defaults for fields
// the author omitted.
func jsonPolicy(data []byte) (*Policy, error) {
	var policy Policy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, err
	}
	if policy.Severity == "" {
		policy.Severity = SeverityError
	}
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = time.Now()
	}
	if policy.UpdatedAt.IsZero() {
		policy.UpdatedAt = time.Now()
	}
	return &policy, nil
}

// leadingComment joins the comment block at the top of a rego module into
// one line, stopping at the first non-comment statement.
func leadingComment(src string) string {
	var parts []string
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#"):
			if c := strings.TrimSpace(trimmed[1:]); c != "" && !strings.HasPrefix(c, "package") {
				parts = append(parts, c)
			}
		case trimmed != "" && len(parts) > 0:
			return strings.Join(parts, " ")
		}
	}
	return strings.Join(parts, " ")
}
