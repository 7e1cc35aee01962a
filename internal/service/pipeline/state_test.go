package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

func sampleOutline() *domain.Outline {
	return &domain.Outline{
		DocumentTitle:       "BBR vs Cubic",
		DocumentDescription: "Congestion control in datacenters.",
		Sections: []domain.OutlineSection{
			{SectionTitle: "Background", Description: "History of TCP congestion control."},
			{SectionTitle: "Measurements", Description: "Datacenter benchmarks.",
				Subsections: []domain.OutlineSubsection{{Title: "Latency", Description: "p99 behaviour."}}},
		},
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	st := &State{
		ResearchIdea: "Compare TCP BBR vs Cubic",
		Outline:      sampleOutline(),
		Perspectives: &domain.Perspectives{Experts: []domain.Expert{
			{Name: "A", Profession: "Network engineer", Role: "operator view"},
			{Name: "B", Profession: "Researcher", Role: "theory view"},
		}},
		PerspectiveContent: [][]string{{"s1e1", "s1e2"}, {"s2e1", "s2e2"}},
		FinalDocument: &domain.CompleteDocument{Title: "BBR vs Cubic", Sections: []domain.ContentSection{
			{SectionTitle: "Background", Content: "text", Citations: []string{"https://a.example"}},
		}},
	}

	got := Deserialize(Serialize(st))
	assert.Equal(t, st.ResearchIdea, got.ResearchIdea)
	assert.Equal(t, st.Outline, got.Outline)
	assert.Equal(t, st.Perspectives, got.Perspectives)
	assert.Equal(t, st.PerspectiveContent, got.PerspectiveContent)
	assert.Equal(t, st.FinalDocument, got.FinalDocument)
}

func TestSerializeOmitsAbsentFields(t *testing.T) {
	m := Serialize(&State{ResearchIdea: "idea"})
	assert.Equal(t, "idea", m["research_idea"])
	_, hasOutline := m["document_outline"]
	_, hasFinal := m["final_document"]
	assert.False(t, hasOutline)
	assert.False(t, hasFinal)
}

func TestDeserializeLegacyAliases(t *testing.T) {
	m := map[string]any{
		"research_idea":   "idea",
		"documentOutline": toJSONValue(sampleOutline()),
		"finalDocument":   toJSONValue(&domain.CompleteDocument{Title: "T", Sections: []domain.ContentSection{{SectionTitle: "S", Content: "c"}}}),
	}
	st := Deserialize(m)
	require.NotNil(t, st.Outline)
	assert.Equal(t, "BBR vs Cubic", st.Outline.DocumentTitle)
	require.NotNil(t, st.FinalDocument)
	assert.Equal(t, "T", st.FinalDocument.Title)
}

func TestDeserializeMalformedFieldsBecomeAbsent(t *testing.T) {
	m := map[string]any{
		"research_idea":       "idea",
		"document_outline":    "not an object",
		"perspectives":        42,
		"perspective_content": map[string]any{"rows": 1},
		"final_document":      []any{"nope"},
	}
	st := Deserialize(m)
	assert.Nil(t, st.Outline)
	assert.Nil(t, st.Perspectives)
	assert.Nil(t, st.PerspectiveContent)
	assert.Nil(t, st.FinalDocument)
}

func TestDeserializeNormalizesRaggedMatrix(t *testing.T) {
	m := map[string]any{
		"perspective_content": []any{[]any{"a", "b", "c"}, []any{"d"}},
	}
	st := Deserialize(m)
	require.Len(t, st.PerspectiveContent, 2)
	assert.Equal(t, []string{"a", "b", "c"}, st.PerspectiveContent[0])
	assert.Equal(t, []string{"d", "", ""}, st.PerspectiveContent[1])
}

func TestResolveResumeStage(t *testing.T) {
	outline := sampleOutline()
	persp := &domain.Perspectives{Experts: []domain.Expert{{Name: "A"}}}
	matrix := [][]string{{"x"}, {"y"}}
	doc := &domain.CompleteDocument{Title: "T", Sections: []domain.ContentSection{{SectionTitle: "S", Content: "c"}}}

	cases := []struct {
		name      string
		requested domain.StageTag
		st        *State
		want      domain.StageTag
		wantRun   bool
	}{
		{"empty state starts at outline", "", &State{}, domain.StageOutline, true},
		{"outline present moves to perspectives", "", &State{Outline: outline}, domain.StagePerspectives, true},
		{"content next after perspectives", "", &State{Outline: outline, Perspectives: persp}, domain.StageContent, true},
		{"fusion when matrix present", "", &State{Outline: outline, Perspectives: persp, PerspectiveContent: matrix}, domain.StageFusion, true},
		{"final document means done", "", &State{FinalDocument: doc}, "", false},
		{"requested honoured when prerequisites met", domain.StageFusion, &State{Outline: outline, Perspectives: persp, PerspectiveContent: matrix}, domain.StageFusion, true},
		{"requested ignored when prerequisites missing", domain.StageFusion, &State{Outline: outline}, domain.StagePerspectives, true},
		{"requested rerun of earlier stage", domain.StageOutline, &State{Outline: outline, Perspectives: persp}, domain.StageOutline, true},
		{"unknown requested falls back to first missing", domain.StageTag("bogus"), &State{Outline: outline}, domain.StagePerspectives, true},
		{"done wins over requested", domain.StageOutline, &State{FinalDocument: doc}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, run := ResolveResumeStage(tc.requested, tc.st)
			assert.Equal(t, tc.wantRun, run)
			assert.Equal(t, tc.want, got)
		})
	}
}
