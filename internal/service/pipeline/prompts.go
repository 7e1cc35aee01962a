package pipeline

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// emptyIdeaMessage is the fixed assistant reply for an empty research idea;
// the job still completes.
const emptyIdeaMessage = "No research idea was provided. Please describe what you would like me to research and try again."

const outlineSystem = `You are a research planner preparing a structured document outline.
Work in two phases:
1. Use the tools to ground yourself: vector_search for material already collected,
   web_search to discover sources, url_search to read a specific page in depth.
2. Draft an outline: a document title, a one-paragraph document description, and
   4-8 sections. Each section has a title, a description of what it must cover,
   and optional subsections.
Sections must be non-overlapping and collectively cover the research idea.
Do not write the document content itself.`

const perspectivesSystemTmpl = `You assemble a panel of %d distinct experts to research a topic.
Each expert has a name, a profession, and a role describing the unique angle
they bring. The experts must differ substantially from one another: different
disciplines, different stakes, different methods. Base the panel on the
document outline provided.`

const expertSystemTmpl = `You are %s, %s. Your role on this research panel: %s.

Research the section you are given using the tools:
- vector_search first, to reuse material this session already collected;
- web_search to find new sources;
- url_search to read a promising page or PDF in full.

Write the section as thorough markdown from your distinct professional angle.
Cite factual claims by putting the source URL on the line where it is used.
Where data is genuinely tabular or comparative, you may include a chartjson or
mermaid fenced block. Use LaTeX math delimiters for equations.`

const documentSummarySystem = `Summarize the document in 3-5 sentences.
Keep concrete facts, figures, names and dates. Plain text only.`

const rollingSummarySystem = `Maintain a running summary of a research document in progress.
Condense the sections below into at most 3 paragraphs, preserving the main
claims, numbers and source names. Plain text only.`

const fusionSystemTmpl = `You are the lead editor fusing multiple experts' drafts into one final section.
Document title: %s
Document description: %s

You receive one draft per expert for the same section. Merge them into a
single authoritative section:
- reconcile disagreements, attribute genuinely conflicting findings;
- keep every well-sourced fact, drop repetition;
- target %s length and detail;
- keep valid chartjson/mermaid blocks and LaTeX equations where they add value;
- collect every source URL used into the citations list.`

func perspectivesSystem(count int) string {
	return fmt.Sprintf(perspectivesSystemTmpl, count)
}

func expertSystem(e domain.Expert) string {
	return fmt.Sprintf(expertSystemTmpl, e.Name, e.Profession, e.Role)
}

func fusionSystem(outline *domain.Outline, length domain.DocumentLength) string {
	return fmt.Sprintf(fusionSystemTmpl, outline.DocumentTitle, outline.DocumentDescription, string(length))
}

// sectionPrompt renders the generation prompt for one outline section,
// appending the rolling summary of previous sections when present.
func sectionPrompt(sec domain.OutlineSection, rollingSummary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Section: %s\n\nWhat it must cover: %s\n", sec.SectionTitle, sec.Description)
	if len(sec.Subsections) > 0 {
		b.WriteString("\nSubsections:\n")
		for _, sub := range sec.Subsections {
			fmt.Fprintf(&b, "- %s: %s\n", sub.Title, sub.Description)
		}
	}
	if rollingSummary != "" {
		b.WriteString("\nSummary of the previous sections: " + rollingSummary + "\n")
	}
	return b.String()
}

// fusionPrompt renders the per-section fusion input: the outline section,
// each expert's draft, and the rolling summary so far.
func fusionPrompt(sec domain.OutlineSection, experts []domain.Expert, drafts []string, rollingSummary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Section: %s\nSection brief: %s\n", sec.SectionTitle, sec.Description)
	if rollingSummary != "" {
		b.WriteString("\nSummary of the previous sections: " + rollingSummary + "\n")
	}
	for i, draft := range drafts {
		name := fmt.Sprintf("Expert %d", i+1)
		if i < len(experts) {
			name = fmt.Sprintf("%s (%s)", experts[i].Name, experts[i].Profession)
		}
		fmt.Fprintf(&b, "\n--- Draft by %s ---\n%s\n", name, draft)
	}
	return b.String()
}

func outlineSchema() domain.ResponseSchema {
	return domain.ResponseSchema{
		Name: "outline",
		Schema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"document_title", "document_description", "sections"},
			"properties": map[string]any{
				"document_title":       map[string]any{"type": "string"},
				"document_description": map[string]any{"type": "string"},
				"sections": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":                 "object",
						"additionalProperties": false,
						"required":             []string{"section_title", "description"},
						"properties": map[string]any{
							"section_title": map[string]any{"type": "string"},
							"description":   map[string]any{"type": "string"},
							"subsections": map[string]any{
								"type": "array",
								"items": map[string]any{
									"type":                 "object",
									"additionalProperties": false,
									"required":             []string{"title", "description"},
									"properties": map[string]any{
										"title":       map[string]any{"type": "string"},
										"description": map[string]any{"type": "string"},
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

func perspectivesSchema() domain.ResponseSchema {
	return domain.ResponseSchema{
		Name: "perspectives",
		Schema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"experts"},
			"properties": map[string]any{
				"experts": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":                 "object",
						"additionalProperties": false,
						"required":             []string{"name", "profession", "role"},
						"properties": map[string]any{
							"name":       map[string]any{"type": "string"},
							"profession": map[string]any{"type": "string"},
							"role":       map[string]any{"type": "string"},
						},
					},
				},
			},
		},
	}
}

func contentSectionSchema() domain.ResponseSchema {
	return domain.ResponseSchema{
		Name: "content_section",
		Schema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"section_title", "content", "citations"},
			"properties": map[string]any{
				"section_title": map[string]any{"type": "string"},
				"content":       map[string]any{"type": "string"},
				"citations":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
	}
}
