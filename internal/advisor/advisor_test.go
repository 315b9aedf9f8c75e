package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{in: "DINGZUI", want: Dingzui},
		{in: " fali ", want: Fali},
		{in: "Arbiter", want: Arbiter},
		{in: "USER", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseID(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownID) {
				t.Errorf("ParseID(%q) err = %v, want ErrUnknownID", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseID(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestOrdinaryExcludesDistinguished(t *testing.T) {
	t.Parallel()

	for _, id := range Ordinary() {
		if !id.IsOrdinary() {
			t.Fatalf("%s should be ordinary", id)
		}
	}
	if Arbiter.IsOrdinary() || Vision.IsOrdinary() {
		t.Fatal("arbiter and vision must not be ordinary")
	}
}

func TestDefaultRegistryCoversClosedSet(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	for _, id := range All() {
		p := reg.Profile(id)
		if p.ID != id || p.DisplayName == "" || p.Persona == "" || p.Voice == "" {
			t.Fatalf("incomplete profile for %s: %+v", id, p)
		}
	}
	if !reg.Profile(Vision).Vision {
		t.Fatal("vision advisor must be vision capable")
	}
	if reg.Profile(Dingzui).Vision {
		t.Fatal("ordinary advisors must not be vision capable")
	}
	if reg.Profile(ID(42)) != (Profile{}) {
		t.Fatal("unknown ids should yield a zero profile")
	}
	if reg.Labels()["FALI"] != "法理狮" {
		t.Fatalf("unexpected label %q", reg.Labels()["FALI"])
	}
}

func TestParseRejectsIncompleteCatalogue(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown id":  "selector: x\nadvisors:\n  - id: NOBODY\n    persona: p\n",
		"missing":     "selector: x\nadvisors:\n  - id: ZHUGE\n    persona: p\n",
		"vision flag": "selector: x\nadvisors:\n  - id: ZHUGE\n    persona: p\n    vision: true\n",
	}
	for name, doc := range tests {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

type stubClassifier struct {
	items   []string
	err     error
	persona string
	prompt  string
}

func (s *stubClassifier) Classify(_ context.Context, persona, prompt string) ([]string, error) {
	s.persona = persona
	s.prompt = prompt
	return s.items, s.err
}

func TestFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want Selection
	}{
		{name: "keeps order", in: []string{"FALI", "ZHUGE"}, want: Selection{Fali, Zhuge}},
		{name: "drops unknown and distinguished", in: []string{"ARBITER", "nobody", "VISION", "dingzui"}, want: Selection{Dingzui}},
		{name: "dedupes first occurrence", in: []string{"FALI", "ZHUGE", "fali"}, want: Selection{Fali, Zhuge}},
		{name: "truncates", in: []string{"FALI", "ZHUGE", "DINGZUI", "FALI", "ZHUGE"}, want: Selection{Fali, Zhuge, Dingzui}},
		{name: "empty", in: nil, want: Selection{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Filter(tt.in)
			if strings.Join(got.Strings(), ",") != strings.Join(tt.want.Strings(), ",") {
				t.Fatalf("Filter(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSelectorBounds(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	inputs := [][]string{
		{"DINGZUI", "FALI"},
		{"ZHUGE", "ZHUGE", "ZHUGE", "ZHUGE"},
		{"FALI", "DINGZUI", "ZHUGE", "ARBITER", "VISION"},
		{"VISION"},
		{},
	}
	for _, items := range inputs {
		sel := NewSelector(&stubClassifier{items: items}, reg, nil).Select(context.Background(), "同事甩锅", "你又不是老板")
		if len(sel) < 1 || len(sel) > MaxSelection {
			t.Fatalf("selection size %d out of bounds for %v", len(sel), items)
		}
		seen := map[ID]bool{}
		for _, id := range sel {
			if !id.IsOrdinary() {
				t.Fatalf("non-ordinary id %s selected for %v", id, items)
			}
			if seen[id] {
				t.Fatalf("duplicate id %s selected for %v", id, items)
			}
			seen[id] = true
		}
	}
}

func TestSelectorFallsBack(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}

	failing := &stubClassifier{err: errors.New("quota")}
	sel := NewSelector(failing, reg, nil).Select(context.Background(), "s", "o")
	if strings.Join(sel.Strings(), ",") != "ZHUGE,DINGZUI,FALI" {
		t.Fatalf("expected fallback trio, got %v", sel)
	}
	if failing.persona != reg.SelectorInstructions() {
		t.Fatal("selector instructions not sent")
	}

	empty := &stubClassifier{items: []string{"nobody", "ARBITER"}}
	sel = NewSelector(empty, reg, nil).Select(context.Background(), "s", "o")
	if strings.Join(sel.Strings(), ",") != "ZHUGE,DINGZUI,FALI" {
		t.Fatalf("expected fallback trio for unusable ids, got %v", sel)
	}
}

func TestSelectorUsesClassification(t *testing.T) {
	t.Parallel()

	reg, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	c := &stubClassifier{items: []string{"DINGZUI", "FALI"}}
	sel := NewSelector(c, reg, nil).Select(context.Background(), "同事甩锅", "你又不是老板")
	if strings.Join(sel.Strings(), ",") != "DINGZUI,FALI" {
		t.Fatalf("unexpected selection %v", sel)
	}
	if !strings.Contains(c.prompt, "同事甩锅") || !strings.Contains(c.prompt, "你又不是老板") {
		t.Fatalf("prompt missing scenario: %q", c.prompt)
	}
}
