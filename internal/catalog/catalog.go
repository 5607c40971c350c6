// Package catalog holds the static registry of maintenance and diagnostic
// actions. Actions are registered once at startup and immutable afterwards;
// unknown ids resolve to ErrNotFound.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrNotFound is returned by Lookup for an unknown action id. Callers must
// treat it as terminal and non-retryable.
var ErrNotFound = errors.New("action not found")

// Result holds the outcome of invoking a single action.
type Result struct {
	OK       bool
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error // connection/timeout errors, as opposed to non-zero exits
}

// Param declares a parameter an action's command template accepts.
type Param struct {
	Name     string
	Default  string
	Required bool
}

// CollectSpec describes a file the action leaves on the target which should
// be pulled back after a successful run.
type CollectSpec struct {
	RemotePath string // may contain {{param}} placeholders
	LocalDir   string // destination root; files land in <LocalDir>/<host>/
}

// Action describes a catalog entry: display metadata, the command template it
// renders, and its execution constraints.
type Action struct {
	ID                string
	Name              string
	Category          string
	RequiresElevation bool
	SupportsRemote    bool
	Command           string // shell command template with {{param}} placeholders
	Params            []Param
	Collect           *CollectSpec
}

var paramRe = regexp.MustCompile(`\{\{([a-zA-Z0-9_-]+)\}\}`)

// RenderCommand substitutes params into the action's command template.
// Declared defaults fill missing values; a missing required param is an error.
// Unknown placeholder names left unresolved are also an error, so a typo in a
// template never reaches a shell.
func (a Action) RenderCommand(params map[string]string) (string, error) {
	merged := make(map[string]string, len(a.Params)+len(params))
	for _, p := range a.Params {
		if p.Default != "" {
			merged[p.Name] = p.Default
		}
	}
	for k, v := range params {
		merged[k] = v
	}

	for _, p := range a.Params {
		if p.Required && merged[p.Name] == "" {
			return "", fmt.Errorf("action %q: required param %q not set", a.ID, p.Name)
		}
	}

	var missing []string
	out := paramRe.ReplaceAllStringFunc(a.Command, func(m string) string {
		name := paramRe.FindStringSubmatch(m)[1]
		v, ok := merged[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return shellQuote(v)
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("action %q: unresolved params: %s", a.ID, strings.Join(missing, ", "))
	}
	return out, nil
}

// RenderCollectPath substitutes params into the collect spec's remote path.
func (a Action) RenderCollectPath(params map[string]string) (string, error) {
	if a.Collect == nil {
		return "", nil
	}
	tmp := a
	tmp.Command = a.Collect.RemotePath
	return tmp.RenderCommand(params)
}

// shellQuote single-quotes a value for safe interpolation into a shell command.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`&|;<>()*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Catalog is a closed, startup-populated action registry.
type Catalog struct {
	actions map[string]Action
	order   []string
}

// New builds a catalog from the given actions. Duplicate or empty ids are a
// programming error and panic, matching the registry's init-time-only contract.
func New(actions ...Action) *Catalog {
	c := &Catalog{actions: make(map[string]Action, len(actions))}
	for _, a := range actions {
		if a.ID == "" {
			panic("catalog: action with empty id")
		}
		if _, dup := c.actions[a.ID]; dup {
			panic(fmt.Sprintf("catalog: duplicate action id %q", a.ID))
		}
		c.actions[a.ID] = a
		c.order = append(c.order, a.ID)
	}
	return c
}

// Lookup resolves an action id.
func (c *Catalog) Lookup(id string) (Action, error) {
	a, ok := c.actions[id]
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return a, nil
}

// All returns every action in registration order.
func (c *Catalog) All() []Action {
	out := make([]Action, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.actions[id])
	}
	return out
}

// Len returns the number of registered actions.
func (c *Catalog) Len() int {
	return len(c.order)
}
