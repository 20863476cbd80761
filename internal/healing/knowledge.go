package healing

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/harrison/agentflow/internal/filelock"
)

// KnowledgeVersion is the schema version written to the knowledge base file.
const KnowledgeVersion = 1

// DefaultSimilarityThreshold is the minimum Similarity for a lookup hit.
const DefaultSimilarityThreshold = 0.6

// Entry is one learned error category and its remedy.
type Entry struct {
	Category       string    `json:"category"`
	ErrorSample    string    `json:"error_sample"`
	Solution       string    `json:"solution"`
	SuggestedFixes []string  `json:"suggested_fixes"`
	Agents         []string  `json:"agents"`
	Occurrences    int       `json:"occurrences"`
	UsageCount     int       `json:"usage_count"`
	FirstSeen      time.Time `json:"first_seen"`
	LastUpdated    time.Time `json:"last_updated"`
}

func (e *Entry) clone() Entry {
	c := *e
	c.SuggestedFixes = append([]string(nil), e.SuggestedFixes...)
	c.Agents = append([]string(nil), e.Agents...)
	return c
}

type knowledgeFile struct {
	Version int               `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}

// KnowledgeBase persists significant error patterns across runs.
// An empty path keeps it in memory only.
type KnowledgeBase struct {
	mu         sync.Mutex
	path       string
	entries    map[string]*Entry
	changed    map[string]bool
	similarity float64
	now        func() time.Time
}

// OpenKnowledgeBase loads path if it exists. A missing file yields an empty
// knowledge base; an unreadable one is an error.
func OpenKnowledgeBase(path string, similarity float64) (*KnowledgeBase, error) {
	if similarity <= 0 || similarity > 1 {
		similarity = DefaultSimilarityThreshold
	}
	kb := &KnowledgeBase{
		path:       path,
		entries:    make(map[string]*Entry),
		changed:    make(map[string]bool),
		similarity: similarity,
		now:        time.Now,
	}
	if path == "" {
		return kb, nil
	}

	var file knowledgeFile
	err := filelock.ReadJSON(path, &file)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return kb, nil
	case err != nil:
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}
	if file.Version > KnowledgeVersion {
		return nil, fmt.Errorf("load knowledge base: unsupported version %d", file.Version)
	}
	for k, e := range file.Entries {
		if e != nil {
			kb.entries[k] = e
		}
	}
	return kb, nil
}

// Record merges a significant pattern into its category entry, adding delta
// occurrences.
func (kb *KnowledgeBase) Record(p ErrorPattern, delta int) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	now := kb.now()
	e, ok := kb.entries[p.Category]
	if !ok {
		fixes := SuggestedFixes(p.Category)
		e = &Entry{
			Category:       p.Category,
			ErrorSample:    p.ErrorMessage,
			Solution:       fixes[0],
			SuggestedFixes: fixes,
			FirstSeen:      now,
		}
		kb.entries[p.Category] = e
	}
	e.Occurrences += delta
	e.LastUpdated = now
	e.Agents = appendMissing(e.Agents, p.AgentName)
	kb.changed[p.Category] = true
}

// Lookup finds the entry for message by category, else by the best
// Similarity against stored samples at or above the threshold.
func (kb *KnowledgeBase) Lookup(message string) (Entry, bool) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if e := kb.lookup(message); e != nil {
		return e.clone(), true
	}
	return Entry{}, false
}

// Apply is Lookup that also counts the entry as used.
func (kb *KnowledgeBase) Apply(message string) (Entry, bool) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	e := kb.lookup(message)
	if e == nil {
		return Entry{}, false
	}
	e.UsageCount++
	e.LastUpdated = kb.now()
	kb.changed[e.Category] = true
	return e.clone(), true
}

func (kb *KnowledgeBase) lookup(message string) *Entry {
	if e, ok := kb.entries[Normalize(message)]; ok {
		return e
	}
	var best *Entry
	bestScore := 0.0
	for _, key := range kb.sortedKeys() {
		e := kb.entries[key]
		score := Similarity(message, e.ErrorSample)
		if score >= kb.similarity && score > bestScore {
			best, bestScore = e, score
		}
	}
	return best
}

func (kb *KnowledgeBase) sortedKeys() []string {
	keys := make([]string, 0, len(kb.entries))
	for k := range kb.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns all entries, most frequent first.
func (kb *KnowledgeBase) Entries() []Entry {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	out := make([]Entry, 0, len(kb.entries))
	for _, k := range kb.sortedKeys() {
		out = append(out, kb.entries[k].clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Occurrences > out[j].Occurrences })
	return out
}

// Len returns the number of entries.
func (kb *KnowledgeBase) Len() int {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return len(kb.entries)
}

// Save writes changed entries over whatever another process stored in the
// meantime, leaving untouched categories as they are on disk.
func (kb *KnowledgeBase) Save() error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.path == "" || len(kb.changed) == 0 {
		return nil
	}

	err := filelock.Update(kb.path, func(current []byte) ([]byte, error) {
		file := knowledgeFile{Entries: make(map[string]*Entry)}
		if len(current) > 0 {
			if err := json.Unmarshal(current, &file); err != nil {
				return nil, fmt.Errorf("decode knowledge base: %w", err)
			}
			if file.Entries == nil {
				file.Entries = make(map[string]*Entry)
			}
		}
		file.Version = KnowledgeVersion
		for category := range kb.changed {
			file.Entries[category] = kb.entries[category]
		}
		return json.MarshalIndent(file, "", "  ")
	})
	if err != nil {
		return fmt.Errorf("save knowledge base: %w", err)
	}
	kb.changed = make(map[string]bool)
	return nil
}

func appendMissing(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
