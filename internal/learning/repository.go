package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/harrison/agentflow/internal/filelock"
)

// HistoryVersion is the schema version of the JSON history file.
const HistoryVersion = 1

// Repository loads and stores performance metrics keyed by agent name.
type Repository interface {
	Load(ctx context.Context) (map[string]*AgentPerformanceMetrics, error)
	Save(ctx context.Context, metrics map[string]*AgentPerformanceMetrics) error
	Close() error
}

// ExecutionRecorder is implemented by repositories that keep an
// append-only log of individual executions.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, e Execution) error
}

// MemoryRepository keeps metrics in process memory.
type MemoryRepository struct {
	metrics map[string]*AgentPerformanceMetrics
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{metrics: make(map[string]*AgentPerformanceMetrics)}
}

func (r *MemoryRepository) Load(context.Context) (map[string]*AgentPerformanceMetrics, error) {
	return cloneAll(r.metrics), nil
}

func (r *MemoryRepository) Save(_ context.Context, metrics map[string]*AgentPerformanceMetrics) error {
	for k, v := range cloneAll(metrics) {
		r.metrics[k] = v
	}
	return nil
}

func (r *MemoryRepository) Close() error { return nil }

type historyFile struct {
	Version int                                 `json:"version"`
	Agents  map[string]*AgentPerformanceMetrics `json:"agents"`
}

// JSONRepository stores metrics in a single JSON file guarded by a file lock.
type JSONRepository struct {
	path string
}

// NewJSONRepository returns a repository backed by path.
func NewJSONRepository(path string) *JSONRepository {
	return &JSONRepository{path: path}
}

// Load returns the stored metrics; a missing file is an empty history.
func (r *JSONRepository) Load(ctx context.Context) (map[string]*AgentPerformanceMetrics, error) {
	var file historyFile
	err := filelock.ReadJSON(r.path, &file)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return map[string]*AgentPerformanceMetrics{}, nil
	case err != nil:
		return nil, fmt.Errorf("load history: %w", err)
	}
	if file.Version > HistoryVersion {
		return nil, fmt.Errorf("load history: unsupported version %d", file.Version)
	}
	out := make(map[string]*AgentPerformanceMetrics, len(file.Agents))
	for name, m := range file.Agents {
		if m == nil {
			continue
		}
		if m.FailurePatterns == nil {
			m.FailurePatterns = make(map[string]int)
		}
		m.AgentName = name
		out[name] = m
	}
	return out, nil
}

// Save replaces the given agents' entries and keeps every other agent on disk.
func (r *JSONRepository) Save(ctx context.Context, metrics map[string]*AgentPerformanceMetrics) error {
	err := filelock.Update(r.path, func(current []byte) ([]byte, error) {
		file := historyFile{Agents: make(map[string]*AgentPerformanceMetrics)}
		if len(current) > 0 {
			if err := json.Unmarshal(current, &file); err != nil {
				return nil, fmt.Errorf("decode history: %w", err)
			}
			if file.Agents == nil {
				file.Agents = make(map[string]*AgentPerformanceMetrics)
			}
		}
		file.Version = HistoryVersion
		for name, m := range metrics {
			file.Agents[name] = m
		}
		return json.MarshalIndent(file, "", "  ")
	})
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (r *JSONRepository) Close() error { return nil }

// Open returns the repository for backend ("json" or "sqlite") at path.
func Open(backend, path string) (Repository, error) {
	switch backend {
	case "", "json":
		if path == "" {
			return NewMemoryRepository(), nil
		}
		return NewJSONRepository(path), nil
	case "sqlite":
		if path == "" {
			path = ":memory:"
		}
		return NewSQLiteRepository(path)
	case "memory":
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", backend)
	}
}

func cloneAll(in map[string]*AgentPerformanceMetrics) map[string]*AgentPerformanceMetrics {
	out := make(map[string]*AgentPerformanceMetrics, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}
