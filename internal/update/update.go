// Package update pulls application source and classifies the outcome.
package update

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

type Outcome int

const (
	OutcomeError Outcome = iota
	OutcomeNoop
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoop:
		return "no-op"
	case OutcomeUpdated:
		return "updated"
	}
	return "error"
}

// Phrases printed by `git pull`. They track the wording of the git versions
// in use; git has no structured status for a pull.
const (
	upToDateLegacy = "Already up-to-date."
	upToDate       = "Already up to date."
	updatingMarker = "Updating"
	changedMarker  = "changed,"
)

// Classify maps pull output to an outcome. Only the exact up-to-date line
// counts as a no-op; an update needs both the fast-forward header and the
// diffstat summary.
func Classify(output string) Outcome {
	trimmed := strings.TrimSpace(output)
	if trimmed == upToDateLegacy || trimmed == upToDate {
		return OutcomeNoop
	}
	if strings.Contains(trimmed, updatingMarker) && strings.Contains(trimmed, changedMarker) {
		return OutcomeUpdated
	}
	return OutcomeError
}

// Puller runs a source update and returns its textual output.
type Puller interface {
	Pull(ctx context.Context) (string, error)
}

// GitPuller runs `git pull` in Dir.
type GitPuller struct {
	Dir     string
	Timeout time.Duration
}

func (g *GitPuller) Pull(ctx context.Context) (string, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, "git", "pull")
	cmd.Dir = g.Dir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
