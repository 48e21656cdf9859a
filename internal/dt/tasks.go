package dt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownTask is returned when invoking a task that was never registered.
var ErrUnknownTask = errors.New("unknown task")

// Task is a named unit of local work, such as a build. Its result may be
// nil, a map, or JSON text describing the build.
type Task func(ctx context.Context) (any, error)

// TaskRegistry holds the tasks available to one run.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewTaskRegistry creates an empty TaskRegistry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]Task)}
}

// Register adds task under name. Names must be unique.
func (r *TaskRegistry) Register(name string, task Task) error {
	if name == "" {
		return errors.New("task name is required")
	}
	if task == nil {
		return fmt.Errorf("task %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[name]; ok {
		return fmt.Errorf("task %q is already registered", name)
	}
	r.tasks[name] = task
	return nil
}

// Invoke runs the task registered under name.
func (r *TaskRegistry) Invoke(ctx context.Context, name string) (any, error) {
	r.mu.RLock()
	task, ok := r.tasks[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return task(ctx)
}

// Names returns the registered task names in sorted order.
func (r *TaskRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizeBuildData converts a build task result into the map stored with
// each release. Anything that is not a map or a JSON object becomes an empty map.
func NormalizeBuildData(v any) map[string]any {
	switch data := v.(type) {
	case map[string]any:
		if data == nil {
			return map[string]any{}
		}
		return data
	case map[string]string:
		out := make(map[string]any, len(data))
		for k, v := range data {
			out[k] = v
		}
		return out
	case []byte:
		return decodeBuildData(data)
	case string:
		return decodeBuildData([]byte(data))
	default:
		return map[string]any{}
	}
}

func decodeBuildData(data []byte) map[string]any {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
