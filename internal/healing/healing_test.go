package healing

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeGroupsMissingParameter(t *testing.T) {
	messages := []string{
		"write_file() missing required positional argument: 'content'",
		"Error: Missing required parameter content",
	}
	for _, msg := range messages {
		assert.Equal(t, "missing_content_parameter", Normalize(msg), msg)
	}
}

func TestNormalizeCategories(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"HTTP 429 Too Many Requests", CategoryRateLimit},
		{"rate limit exceeded, retry later", CategoryRateLimit},
		{"context deadline exceeded", CategoryTimeout},
		{"command timed out after 30s", CategoryTimeout},
		{"Tool execution failed: bash exited 1", CategoryToolFailure},
		{"", "unknown_error"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.msg))
		})
	}
}

func TestNormalizeFallbackStripsVolatileDetail(t *testing.T) {
	a := Normalize(`cannot open "/tmp/run-1/out.txt": permission denied at line 12`)
	b := Normalize(`cannot open "/var/data/x.txt": permission denied at line 99`)
	assert.Equal(t, a, b)
	assert.LessOrEqual(t, len(Normalize(strings.Repeat("unexpected failure ", 20))), fallbackLength)
}

func TestLadderEscalation(t *testing.T) {
	d := NewDetector()
	for n := 1; n <= 8; n++ {
		count, strategy := d.RecordError("builder", "missing required parameter content")
		assert.Equal(t, n, count)
		want := n
		if want > 5 {
			want = 5
		}
		assert.Equal(t, Strategy(want), strategy, "occurrence %d", n)
	}
}

func TestLadderIsPerAgentAndCategory(t *testing.T) {
	d := NewDetector()
	d.RecordError("builder", "rate limit")
	d.RecordError("builder", "rate limit")

	count, strategy := d.RecordError("tester", "rate limit")
	assert.Equal(t, 1, count)
	assert.Equal(t, RetrySame, strategy)

	count, _ = d.RecordError("builder", "timed out")
	assert.Equal(t, 1, count)

	p, ok := d.Pattern("builder", "429")
	require.True(t, ok)
	assert.Equal(t, 2, p.Count)
	assert.Equal(t, []string{"retry_same", "retry_with_context"},
		[]string{p.AttemptedFixes[0].Type, p.AttemptedFixes[1].Type})
}

func TestCustomLadder(t *testing.T) {
	l := Ladder{RetrySame: 1, RetryWithContext: 3, TriggerDebugger: 5, UseAlternativeAgent: 7, ManualIntervention: 9}
	require.NoError(t, l.Validate())
	assert.Equal(t, RetrySame, l.StrategyFor(2))
	assert.Equal(t, RetryWithContext, l.StrategyFor(4))
	assert.Equal(t, ManualIntervention, l.StrategyFor(10))

	bad := Ladder{RetrySame: 1, RetryWithContext: 1, TriggerDebugger: 3, UseAlternativeAgent: 4, ManualIntervention: 5}
	assert.Error(t, bad.Validate())
}

func TestParseStrategy(t *testing.T) {
	for s := RetrySame; s <= ManualIntervention; s++ {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStrategy("pray")
	assert.Error(t, err)
}

func TestPickAlternative(t *testing.T) {
	alt, ok := PickAlternative("tester", []string{"builder", "tester"})
	require.True(t, ok)
	assert.Equal(t, "builder", alt)

	_, ok = PickAlternative("tester", []string{"tester"})
	assert.False(t, ok)

	_, ok = PickAlternative("builder", []string{"backend-developer"}, "backend-developer")
	assert.False(t, ok)
}

func TestPromotionAfterSignificance(t *testing.T) {
	kb, err := OpenKnowledgeBase("", 0)
	require.NoError(t, err)
	d := NewDetector(WithKnowledgeBase(kb), WithSignificanceThreshold(3))

	for i := 0; i < 3; i++ {
		d.RecordError("builder", "write_file() missing required positional argument: 'content'")
	}
	assert.Equal(t, 0, kb.Len(), "not promoted until count exceeds the threshold")

	d.RecordError("builder", "write_file() missing required positional argument: 'content'")
	require.Equal(t, 1, kb.Len())
	entry := kb.Entries()[0]
	assert.Equal(t, "missing_content_parameter", entry.Category)
	assert.Equal(t, 4, entry.Occurrences)
	assert.Equal(t, []string{"builder"}, entry.Agents)

	d.RecordError("builder", "Error: Missing required parameter content")
	assert.Equal(t, 5, kb.Entries()[0].Occurrences)
}

func TestApplyAutoHealing(t *testing.T) {
	kb, err := OpenKnowledgeBase("", 0.5)
	require.NoError(t, err)
	d := NewDetector(WithKnowledgeBase(kb), WithSignificanceThreshold(1))

	h := d.ApplyAutoHealing("HTTP 429 too many requests")
	assert.Equal(t, SourceHeuristic, h.Source)
	assert.Equal(t, CategoryRateLimit, h.Category)
	assert.NotEmpty(t, h.Solution)

	d.RecordError("builder", "rate limit hit")
	d.RecordError("builder", "rate limit hit")

	h = d.ApplyAutoHealing("rate limit reached for model")
	assert.Equal(t, SourceKnowledgeBase, h.Source)
	assert.Equal(t, 1, kb.Entries()[0].UsageCount)
}

func TestKnowledgeBaseSimilarityLookup(t *testing.T) {
	kb, err := OpenKnowledgeBase("", 0.6)
	require.NoError(t, err)
	kb.Record(ErrorPattern{
		Category:     "segmentation fault in worker pool",
		ErrorMessage: "segmentation fault in worker pool",
		AgentName:    "builder",
	}, 4)

	_, ok := kb.Lookup("segmentation fault in worker pool thread")
	assert.True(t, ok)
	_, ok = kb.Lookup("disk quota exceeded")
	assert.False(t, ok)
}

func TestKnowledgeBasePersistsAndMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")

	first, err := OpenKnowledgeBase(path, 0)
	require.NoError(t, err)
	first.Record(ErrorPattern{Category: CategoryTimeout, ErrorMessage: "timed out", AgentName: "tester"}, 4)
	require.NoError(t, first.Save())

	// A second writer adds a different category without clobbering the first.
	second, err := OpenKnowledgeBase(path, 0)
	require.NoError(t, err)
	first.Record(ErrorPattern{Category: CategoryRateLimit, ErrorMessage: "429", AgentName: "builder"}, 4)
	require.NoError(t, first.Save())
	second.Record(ErrorPattern{Category: CategoryToolFailure, ErrorMessage: "tool error", AgentName: "builder"}, 4)
	require.NoError(t, second.Save())

	reloaded, err := OpenKnowledgeBase(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Len())
}

func TestDetectorReportPrompt(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDetector(WithClock(func() time.Time { return clock }))
	d.RecordError("builder", "tool error: bash")
	d.RecordError("builder", "tool error: bash")

	r := d.Report("builder", "tool error: bash", "exit status 2")
	assert.Equal(t, 2, r.Occurrences)
	assert.Equal(t, CategoryToolFailure, r.Category)

	prompt := r.Prompt()
	assert.Contains(t, prompt, `Agent "builder"`)
	assert.Contains(t, prompt, "exit status 2")
	assert.Contains(t, prompt, "- retry_with_context")
}
