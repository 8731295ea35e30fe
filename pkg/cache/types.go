package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kie-chi/dnsbuilder/pkg/config"
)

// RunStatus tracks the lifecycle of a recorded compile run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded compile run.
type Run struct {
	ID          string     `json:"id"`
	Project     string     `json:"project"`
	Digest      string     `json:"digest"`
	Status      RunStatus  `json:"status"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Digest returns the content digest of a merged document tree. It is stable
// across mapping key order because it hashes the canonical projection.
func Digest(raw *config.Value) string {
	sum := sha256.Sum256([]byte(raw.Project()))
	return hex.EncodeToString(sum[:])
}
