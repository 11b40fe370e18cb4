package scheduler

import (
	"testing"
)

func TestTextSuggesterPhrases(t *testing.T) {
	tests := []struct {
		name        string
		description string
		wantDep     string
	}{
		{
			name:        "depends on",
			description: "Render the report. Depends on compile-data.",
			wantDep:     "compile-data",
		},
		{
			name:        "after",
			description: "Upload artifacts after compile-data",
			wantDep:     "compile-data",
		},
		{
			name:        "requires",
			description: "This step requires compile-data",
			wantDep:     "compile-data",
		},
		{
			name:        "once completes",
			description: "Ship it once compile-data completes",
			wantDep:     "compile-data",
		},
		{
			name:        "using output of",
			description: "Build charts using the output of compile-data",
			wantDep:     "compile-data",
		},
		{
			name:        "no ordering phrase",
			description: "An unrelated housekeeping chore",
			wantDep:     "",
		},
	}

	sug := NewTextSuggester(0.7)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{ID: "consumer", Description: tt.description}
			candidates := []*Task{
				{ID: "compile-data", Description: "Compile the raw data"},
				{ID: "consumer", Description: tt.description},
			}

			got := sug.Suggest(task, candidates)
			if tt.wantDep == "" {
				if len(got) != 0 {
					t.Errorf("expected no suggestions, got %v", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 suggestion, got %v", got)
			}
			if got[0].DependsOn != tt.wantDep {
				t.Errorf("expected dependency on %s, got %s", tt.wantDep, got[0].DependsOn)
			}
			if got[0].TaskID != "consumer" {
				t.Errorf("suggestion should target consumer, got %s", got[0].TaskID)
			}
		})
	}
}

func TestTextSuggesterExactIDScoresFull(t *testing.T) {
	sug := NewTextSuggester(0.99)
	task := &Task{ID: "b", Description: "run after deploy"}
	candidates := []*Task{{ID: "deploy"}}

	got := sug.Suggest(task, candidates)
	if len(got) != 1 {
		t.Fatalf("expected exact id match to survive a strict threshold, got %v", got)
	}
	if got[0].Confidence != 1.0 {
		t.Errorf("exact id match should score 1.0, got %v", got[0].Confidence)
	}
}

func TestTextSuggesterThresholdRejects(t *testing.T) {
	sug := NewTextSuggester(0.9)
	task := &Task{ID: "b", Description: "run after deplying evrything"}
	candidates := []*Task{{ID: "completely-different-name"}}

	if got := sug.Suggest(task, candidates); len(got) != 0 {
		t.Errorf("dissimilar candidate should fall below threshold, got %v", got)
	}
}

func TestTextSuggesterNeverSuggestsSelf(t *testing.T) {
	sug := NewTextSuggester(0.5)
	task := &Task{ID: "cleanup", Description: "run after cleanup"}

	if got := sug.Suggest(task, []*Task{task}); len(got) != 0 {
		t.Errorf("a task must not be suggested as its own dependency, got %v", got)
	}
}

func TestApplySuggestionsMatchesExplicitEdge(t *testing.T) {
	// A suggested edge must behave exactly like one added explicitly.
	suggested := NewGraph()
	addTask(t, suggested, "build")
	if err := suggested.AddTask(&Task{ID: "test", Description: "Run tests after build"}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	applied := ApplySuggestions(suggested, NewTextSuggester(0.7), "test")
	if len(applied) != 1 {
		t.Fatalf("expected 1 applied suggestion, got %v", applied)
	}

	explicit := NewGraph()
	addTask(t, explicit, "build")
	addTask(t, explicit, "test", "build")

	for _, g := range []*Graph{suggested, explicit} {
		task, _ := g.Get("test")
		if len(task.DependsOn) != 1 || task.DependsOn[0] != "build" {
			t.Errorf("expected test to depend on build, got %v", task.DependsOn)
		}
		if g.IsReady("test") {
			t.Error("test must not be ready while build is pending")
		}
	}
}

func TestApplySuggestionsDropsCycleClosingEdges(t *testing.T) {
	g := NewGraph()
	if err := g.AddTask(&Task{ID: "alpha", Description: "prep work"}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if err := g.AddTask(&Task{ID: "beta", Description: "runs after alpha"}); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if err := g.AddDependency("alpha", "beta"); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}

	// The suggester would propose beta -> alpha, which now closes a cycle;
	// ApplySuggestions must silently drop it.
	applied := ApplySuggestions(g, NewTextSuggester(0.7), "beta")
	if len(applied) != 0 {
		t.Errorf("cycle-closing suggestion should be dropped, got %v", applied)
	}
	task, _ := g.Get("beta")
	if len(task.DependsOn) != 0 {
		t.Errorf("beta should have no dependencies, got %v", task.DependsOn)
	}
}
