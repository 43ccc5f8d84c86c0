package stage

// Headings open every user prompt so scripted models can tell stages apart.
const (
	IntakeHeading     = "## Request refinement"
	SynthesisHeading  = "## Plan synthesis"
	GenerationHeading = "## File generation"
)

const systemPrompt = `You are one stage of an automated software delivery pipeline.
Answer precisely and only in the requested format.`

const intakePrompt = IntakeHeading + `

Rewrite the request below into a precise, self-contained task description.
List the assumptions you had to make and the constraints the result must honor.

Request:
{{ .UserInput }}

Answer with a single JSON object:
{"refined": "...", "assumptions": ["..."], "constraints": ["..."]}`

const synthesisPrompt = SynthesisHeading + `

Task:
{{ .Refined }}

Assumptions:
{{ bullets .Assumptions }}

Constraints:
{{ bullets .Constraints }}

Produce an implementation plan. Every step that creates a file must set "path".
Answer with a single JSON object matching this schema:
{{ .Schema }}`

const generationPrompt = GenerationHeading + `

Goal: {{ .Goal }}
Step {{ .Step.ID }}: {{ .Step.Description }}
File: {{ .Step.Path }}

Answer with the complete content of the file and nothing else.`
