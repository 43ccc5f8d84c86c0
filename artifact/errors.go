package artifact

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when an artifact for the given run / id pair
	// does not exist in the underlying store.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidID is returned for empty or escaping run and artifact ids.
	ErrInvalidID = errors.New("invalid artifact id")
)

// ValidateIDs checks that runID is a single path element and artifactID a
// clean relative path that stays inside its run.
func ValidateIDs(runID, artifactID string) error {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return fmt.Errorf("%w: run id %q", ErrInvalidID, runID)
	}
	return ValidateArtifactID(artifactID)
}

// ValidateArtifactID checks that id is a clean relative slash path.
func ValidateArtifactID(id string) error {
	if id == "" || strings.HasPrefix(id, "/") || strings.Contains(id, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	clean := path.Clean(id)
	if clean != id || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
