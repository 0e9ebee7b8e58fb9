package process

import (
	"os"
	"sort"
	"strings"
)

// Environment is the set of variables handed to a spawned program. An empty
// Environment means the child inherits the parent's environment.
type Environment struct {
	vars map[string]string
}

func NewEnvironment() *Environment {
	return &Environment{vars: make(map[string]string)}
}

// SystemEnvironment snapshots the environment of the current process.
func SystemEnvironment() *Environment {
	env := NewEnvironment()
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env.vars[key] = value
	}
	return env
}

func (e *Environment) Insert(key, value string) {
	e.vars[key] = value
}

func (e *Environment) Remove(key string) {
	delete(e.vars, key)
}

func (e *Environment) Contains(key string) bool {
	_, ok := e.vars[key]
	return ok
}

func (e *Environment) Value(key string) string {
	return e.vars[key]
}

func (e *Environment) IsEmpty() bool {
	return e == nil || len(e.vars) == 0
}

// List returns KEY=VALUE pairs sorted by key.
func (e *Environment) List() []string {
	if e == nil {
		return nil
	}
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+e.vars[k])
	}
	return out
}
