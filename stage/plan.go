package stage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/hupe1980/chimera/artifact"
)

// DefaultPlanPath is the workspace location of the persisted plan.
const DefaultPlanPath = "plan.json"

// ErrNoPlan is returned when the workspace holds no plan.
var ErrNoPlan = errors.New("no plan in workspace")

// Plan is the document produced by synthesis and consumed by execution and
// review.
type Plan struct {
	Goal  string `json:"goal" description:"one sentence summary of what the plan delivers"`
	Steps []Step `json:"steps" description:"ordered steps, one per file to write"`
}

// Step is a single unit of work of a plan.
type Step struct {
	ID          string `json:"id" description:"short unique step identifier"`
	Description string `json:"description" description:"what the step produces"`
	Path        string `json:"path,omitempty" description:"relative slash-separated file path to write"`
	Content     string `json:"content,omitempty" description:"full file content; leave empty to generate it later"`
}

// Files returns the paths of all steps that write a file, in plan order.
func (p Plan) Files() []string {
	var out []string
	for _, s := range p.Steps {
		if s.Path != "" {
			out = append(out, s.Path)
		}
	}
	return out
}

// Validate checks the plan is executable.
func (p Plan) Validate() error {
	if len(p.Steps) == 0 {
		return errors.New("plan has no steps")
	}
	seen := make(map[string]bool, len(p.Steps))
	for i, s := range p.Steps {
		if s.ID == "" {
			return fmt.Errorf("step %d has no id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Path == "" {
			continue
		}
		if err := artifact.ValidateArtifactID(s.Path); err != nil {
			return fmt.Errorf("step %q: %w", s.ID, err)
		}
	}
	return nil
}

// Encode serializes the plan.
func (p Plan) Encode() (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodePlan parses a serialized plan. Surrounding prose or markdown fences
// from a model response are ignored.
func DecodePlan(text string) (Plan, error) {
	var p Plan
	raw := extractJSON(text)
	if raw == "" {
		return p, errors.New("no JSON object found")
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("decode plan: %w", err)
	}
	return p, nil
}

// SavePlan writes the plan to name on fsys.
func SavePlan(fsys billy.Filesystem, name string, p Plan) error {
	text, err := p.Encode()
	if err != nil {
		return err
	}
	return util.WriteFile(fsys, name, []byte(text), 0o644)
}

// LoadPlan reads the plan stored at name on fsys.
func LoadPlan(fsys billy.Filesystem, name string) (Plan, error) {
	data, err := util.ReadFile(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Plan{}, ErrNoPlan
		}
		return Plan{}, err
	}
	return DecodePlan(string(data))
}

// extractJSON returns the outermost JSON object in text, or "".
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
