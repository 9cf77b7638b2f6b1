// internal/semantic/index_test.go
package semantic

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/medtrainlab/casesim/internal/models"
)

// hashEmbedder maps text onto a tiny deterministic vector so tests can
// exercise ranking without a network.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text, _ string) ([]float32, error) {
	vec := make([]float32, 8)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		var h uint32
		for _, r := range word {
			h = h*31 + uint32(r)
		}
		vec[h%8] += 1
	}
	return vec, nil
}

func testIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex(filepath.Join(t.TempDir(), "index.db"), hashEmbedder{})
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestAddAndSearchRanksBySimilarity(t *testing.T) {
	idx := testIndex(t)
	ctx := context.Background()

	docs := []Document{
		{Text: "airway assessment and oxygen therapy", Metadata: map[string]string{"type": "scene"}},
		{Text: "parking regulations for the staff lot", Metadata: map[string]string{"type": "scene"}},
	}
	if err := idx.Add(ctx, "case-1", KindScene, docs); err != nil {
		t.Fatalf("add: %v", err)
	}

	matches, err := idx.Search(ctx, "case-1", KindScene, "airway oxygen", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if !strings.Contains(matches[0].Text, "airway") {
		t.Errorf("top match = %q, want the airway passage", matches[0].Text)
	}
	if matches[0].Score <= 0 {
		t.Errorf("score = %v, want positive", matches[0].Score)
	}
}

func TestSearchIsScopedByCaseAndKind(t *testing.T) {
	idx := testIndex(t)
	ctx := context.Background()

	doc := []Document{{Text: "confidentiality policy"}}
	if err := idx.Add(ctx, "case-1", KindPolicy, doc); err != nil {
		t.Fatalf("add: %v", err)
	}

	otherCase, err := idx.Search(ctx, "case-2", KindPolicy, "confidentiality", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(otherCase) != 0 {
		t.Errorf("case-2 matches = %d, want 0", len(otherCase))
	}

	otherKind, err := idx.Search(ctx, "case-1", KindScene, "confidentiality", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(otherKind) != 0 {
		t.Errorf("scene matches = %d, want 0", len(otherKind))
	}
}

func TestResetDropsOnlyOneCase(t *testing.T) {
	idx := testIndex(t)
	ctx := context.Background()

	idx.Add(ctx, "case-1", KindScene, []Document{{Text: "first case passage"}})
	idx.Add(ctx, "case-2", KindScene, []Document{{Text: "second case passage"}})

	if err := idx.Reset(ctx, "case-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	gone, _ := idx.Search(ctx, "case-1", KindScene, "passage", 3)
	kept, _ := idx.Search(ctx, "case-2", KindScene, "passage", 3)
	if len(gone) != 0 || len(kept) != 1 {
		t.Errorf("after reset: case-1=%d case-2=%d, want 0 and 1", len(gone), len(kept))
	}
}

func TestRebuildIndexesAllDocumentKinds(t *testing.T) {
	idx := testIndex(t)
	scenario := &models.ScenarioDefinition{
		CaseID: "case-1",
		Events: map[string]*models.CanonEvent{
			"ce1": {ID: "ce1", Title: "Handover", Description: "take report"},
		},
		EventSequence: []string{"ce1"},
		Personas: map[string]*models.PersonaTemplate{
			"p1": {ID: "p1", Name: "Nurse Kim", Role: "charge nurse"},
		},
		Context: models.SceneContext{
			Policies: []string{"No unauthorized disclosure."},
		},
	}

	if err := idx.Rebuild(context.Background(), scenario); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	for _, kind := range []string{KindScene, KindPersona, KindPolicy} {
		matches, err := idx.Search(context.Background(), "case-1", kind, "nurse report disclosure", 10)
		if err != nil {
			t.Fatalf("search %s: %v", kind, err)
		}
		if len(matches) == 0 {
			t.Errorf("kind %s indexed no documents", kind)
		}
	}

	// Policy passages carry their stable ids for flag attribution.
	policies, _ := idx.Search(context.Background(), "case-1", KindPolicy, "disclosure", 1)
	if got := policies[0].Metadata["policy_id"]; got != "policy_1" {
		t.Errorf("policy id = %q, want policy_1", got)
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	decoded := DecodeVector(EncodeVector(vec))
	if len(decoded) != len(vec) {
		t.Fatalf("length = %d, want %d", len(decoded), len(vec))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Errorf("decoded[%d] = %v, want %v", i, decoded[i], vec[i])
		}
	}
}

func TestCosineSimilarityEdgeCases(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors = %v, want ~1", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors = %v, want 0", got)
	}
	if got := CosineSimilarity([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("mismatched lengths = %v, want 0", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{0, 0}); got != 0 {
		t.Errorf("zero vectors = %v, want 0", got)
	}
}
