package stage

import "github.com/hupe1980/chimera/model"

const demoPlan = `{
  "goal": "scaffold the requested project",
  "steps": [
    {"id": "readme", "description": "describe the project", "path": "README.md"},
    {"id": "notes", "description": "record assumptions and open points", "path": "NOTES.md"},
    {"id": "review", "description": "read through the generated files"}
  ]
}`

// NewDemoModel returns an offline model scripted for the reference stages.
// The request is kept as is, the plan is a fixed two-file scaffold and every
// generated file gets a placeholder body. It lets the pipeline run end to end
// without provider credentials.
func NewDemoModel() *model.MockModel {
	m := model.NewMockModel("demo", "mock")
	m.AddResponse(IntakeHeading, `{}`)
	m.AddResponse(SynthesisHeading, demoPlan)
	m.AddResponse(GenerationHeading, "# Placeholder\n\nGenerated offline by the demo model.\n")
	return m
}
