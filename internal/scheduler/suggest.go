package scheduler

import (
	"regexp"
	"strings"

	"github.com/agext/levenshtein"
)

// Suggestion is a proposed dependency edge inferred from free text.
type Suggestion struct {
	TaskID     string  // The dependent task
	DependsOn  string  // The task it should wait for
	Confidence float64 // 0..1 match score
	Phrase     string  // The text fragment that triggered the match
}

// Suggester infers dependency edges from task descriptions. It is explicitly
// best-effort: callers needing firm ordering guarantees pass explicit
// dependency ids instead.
type Suggester interface {
	Suggest(task *Task, candidates []*Task) []Suggestion
}

// Ordering phrases recognized in descriptions. Each pattern captures the
// fragment naming the prerequisite.
var dependencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdepends\s+on\s+([^.;,]+)`),
	regexp.MustCompile(`(?i)\bafter\s+([^.;,]+)`),
	regexp.MustCompile(`(?i)\brequires\s+([^.;,]+)`),
	regexp.MustCompile(`(?i)\bonce\s+([^.;,]+?)\s+(?:is\s+done|finishes|completes)`),
	regexp.MustCompile(`(?i)\busing\s+(?:the\s+)?(?:output|result)\s+of\s+([^.;,]+)`),
}

// TextSuggester matches ordering phrases against known task ids and
// descriptions, discarding matches below a similarity threshold.
type TextSuggester struct {
	threshold float64
}

// NewTextSuggester creates a suggester with the given confidence threshold.
// Values outside (0, 1] fall back to 0.7.
func NewTextSuggester(threshold float64) *TextSuggester {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	return &TextSuggester{threshold: threshold}
}

// Suggest scans the task's description for ordering phrases and resolves each
// referenced fragment against the candidate tasks. An exact id match scores
// 1.0; otherwise the best Levenshtein similarity against the candidate's id
// and description is used. At most one suggestion per prerequisite is
// returned, keeping the highest confidence.
func (ts *TextSuggester) Suggest(task *Task, candidates []*Task) []Suggestion {
	if task == nil || task.Description == "" {
		return nil
	}

	best := make(map[string]Suggestion)
	for _, pat := range dependencyPatterns {
		for _, m := range pat.FindAllStringSubmatch(task.Description, -1) {
			phrase := strings.TrimSpace(strings.Trim(m[1], ` "'`))
			if phrase == "" {
				continue
			}
			for _, cand := range candidates {
				if cand.ID == task.ID {
					continue
				}
				score := ts.score(phrase, cand)
				if score < ts.threshold {
					continue
				}
				if prev, ok := best[cand.ID]; !ok || score > prev.Confidence {
					best[cand.ID] = Suggestion{
						TaskID:     task.ID,
						DependsOn:  cand.ID,
						Confidence: score,
						Phrase:     phrase,
					}
				}
			}
		}
	}

	out := make([]Suggestion, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	return out
}

func (ts *TextSuggester) score(phrase string, cand *Task) float64 {
	p := strings.ToLower(phrase)
	if p == strings.ToLower(cand.ID) {
		return 1.0
	}
	score := levenshtein.Similarity(p, strings.ToLower(cand.ID), nil)
	if cand.Description != "" {
		if s := levenshtein.Similarity(p, strings.ToLower(cand.Description), nil); s > score {
			score = s
		}
	}
	return score
}

// ApplySuggestions runs the suggester for one task against every other task
// in the graph and inserts accepted edges through AddDependency, so suggested
// edges face exactly the same cycle and existence checks as explicit ones.
// Rejected suggestions are dropped; the applied ones are returned.
func ApplySuggestions(g *Graph, sug Suggester, taskID string) []Suggestion {
	task, ok := g.Get(taskID)
	if !ok {
		return nil
	}

	var applied []Suggestion
	for _, s := range sug.Suggest(task, g.Tasks()) {
		if err := g.AddDependency(s.TaskID, s.DependsOn); err != nil {
			continue
		}
		applied = append(applied, s)
	}
	return applied
}
