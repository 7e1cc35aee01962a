// Package pipeline implements the four-stage research workflow: outline,
// perspectives, per-expert content and final fusion. Each stage reads and
// writes a checkpointable State so a crashed or requeued job resumes at the
// first stage whose output is missing.
package pipeline

import (
	"encoding/json"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// State is the in-memory pipeline state. PerspectiveContent is rectangular:
// one row per outline section, one column per expert.
type State struct {
	ResearchIdea       string
	Outline            *domain.Outline
	Perspectives       *domain.Perspectives
	PerspectiveContent [][]string
	FinalDocument      *domain.CompleteDocument
}

// Checkpoint map keys. The legacy camelCase aliases are accepted on read
// for checkpoints written by earlier builds.
const (
	keyResearchIdea       = "research_idea"
	keyOutline            = "document_outline"
	keyPerspectives       = "perspectives"
	keyPerspectiveContent = "perspective_content"
	keyFinalDocument      = "final_document"

	aliasOutline            = "documentOutline"
	aliasPerspectiveContent = "perspectiveContent"
	aliasFinalDocument      = "finalDocument"
)

// Serialize dumps the state to a JSON-compatible map. Only present fields
// are included; the matrix is normalised to a rectangular [][]string.
func Serialize(st *State) map[string]any {
	m := map[string]any{keyResearchIdea: st.ResearchIdea}
	if st.Outline != nil {
		m[keyOutline] = toJSONValue(st.Outline)
	}
	if st.Perspectives != nil {
		m[keyPerspectives] = toJSONValue(st.Perspectives)
	}
	if st.PerspectiveContent != nil {
		m[keyPerspectiveContent] = normalizeMatrix(st.PerspectiveContent)
	}
	if st.FinalDocument != nil {
		m[keyFinalDocument] = toJSONValue(st.FinalDocument)
	}
	return m
}

// Deserialize decodes a checkpoint map. Malformed fields decode to absent;
// it never fails, so a corrupt checkpoint degrades to an earlier resume
// stage instead of wedging the job.
func Deserialize(m map[string]any) *State {
	st := &State{}
	if m == nil {
		return st
	}
	if v, ok := m[keyResearchIdea].(string); ok {
		st.ResearchIdea = v
	}
	st.Outline = loadAs[domain.Outline](lookup(m, keyOutline, aliasOutline))
	st.Perspectives = loadAs[domain.Perspectives](lookup(m, keyPerspectives))
	st.PerspectiveContent = loadMatrix(lookup(m, keyPerspectiveContent, aliasPerspectiveContent))
	st.FinalDocument = loadAs[domain.CompleteDocument](lookup(m, keyFinalDocument, aliasFinalDocument))

	// An outline with no sections or empty perspectives carry no resume
	// value; treat them as absent.
	if st.Outline != nil && len(st.Outline.Sections) == 0 {
		st.Outline = nil
	}
	if st.Perspectives != nil && len(st.Perspectives.Experts) == 0 {
		st.Perspectives = nil
	}
	if st.FinalDocument != nil && st.FinalDocument.Title == "" && len(st.FinalDocument.Sections) == 0 {
		st.FinalDocument = nil
	}
	return st
}

// ResolveResumeStage returns the stage to run next. The second result is
// false when the state already holds a final document and nothing remains.
// requested is honoured only when every prerequisite of the requested stage
// is present; otherwise the first missing stage wins.
func ResolveResumeStage(requested domain.StageTag, st *State) (domain.StageTag, bool) {
	if st.FinalDocument != nil {
		return "", false
	}
	first := firstMissingStage(st)
	switch requested {
	case domain.StageOutline:
		return domain.StageOutline, true
	case domain.StagePerspectives:
		if st.Outline != nil {
			return domain.StagePerspectives, true
		}
	case domain.StageContent:
		if st.Outline != nil && st.Perspectives != nil {
			return domain.StageContent, true
		}
	case domain.StageFusion:
		if st.Outline != nil && st.Perspectives != nil && len(st.PerspectiveContent) > 0 {
			return domain.StageFusion, true
		}
	}
	return first, true
}

func firstMissingStage(st *State) domain.StageTag {
	switch {
	case st.Outline == nil:
		return domain.StageOutline
	case st.Perspectives == nil:
		return domain.StagePerspectives
	case len(st.PerspectiveContent) == 0:
		return domain.StageContent
	default:
		return domain.StageFusion
	}
}

func lookup(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// toJSONValue round-trips v through JSON so the checkpoint map contains
// only plain maps, slices and primitives.
func toJSONValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// loadAs decodes v into T, returning nil on any malformation.
func loadAs[T any](v any) *T {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil
	}
	return out
}

func loadMatrix(v any) [][]string {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m [][]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return normalizeMatrix(m)
}

// normalizeMatrix pads ragged rows with empty strings so every row has the
// width of the widest row.
func normalizeMatrix(m [][]string) [][]string {
	width := 0
	for _, row := range m {
		if len(row) > width {
			width = len(row)
		}
	}
	out := make([][]string, len(m))
	for i, row := range m {
		r := make([]string, width)
		copy(r, row)
		out[i] = r
	}
	return out
}
