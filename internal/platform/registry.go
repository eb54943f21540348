package platform

import (
	"fmt"
	"strings"
	"sync"
)

// Registry is an ordered set of plugins. Detection walks plugins in
// registration order and the first match wins.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	byName  map[string]Plugin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Plugin)}
}

// DefaultRegistry registers every platform in detection priority order.
func DefaultRegistry(deps Deps) *Registry {
	deps = deps.withDefaults()

	r := NewRegistry()
	for _, p := range []Plugin{
		NewPython(deps),
		NewNodeJS(deps),
		NewRuby(deps),
		NewPHP(deps),
		NewJVM(deps),
		NewDotNet(deps),
		NewBEAM(deps),
		NewGolang(deps),
		NewNative(deps),
	} {
		// Names above are distinct.
		_ = r.Register(p)
	}
	return r
}

// Register appends p. Names must be unique.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(p.Name())
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("platform %q already registered", name)
	}
	r.byName[name] = p
	r.plugins = append(r.plugins, p)
	return nil
}

// Get returns the plugin called name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[strings.ToLower(name)]
	return p, ok
}

// Plugins returns every plugin in priority order.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Plugin(nil), r.plugins...)
}

// Names returns the plugin names in priority order.
func (r *Registry) Names() []string {
	plugins := r.Plugins()
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name()
	}
	return names
}

// passthrough commands run their arguments as a new command.
var passthrough = map[string]bool{
	"env":     true,
	"time":    true,
	"nice":    true,
	"nohup":   true,
	"exec":    true,
	"command": true,
}

// Detect picks a plugin for argv: first by the command name, looking through
// env/time style wrappers, then by the extension of the first argument that
// has a known one.
func (r *Registry) Detect(argv []string) (Plugin, bool) {
	argv = unwrap(argv)
	if len(argv) == 0 {
		return nil, false
	}
	plugins := r.Plugins()

	for _, p := range plugins {
		if p.DetectCommand(argv) {
			return p, true
		}
	}

	for _, tok := range argv {
		if strings.HasPrefix(tok, "-") {
			_, v, ok := strings.Cut(tok, "=")
			if !ok {
				continue
			}
			tok = v
		}
		for _, p := range plugins {
			if p.DetectExtension(tok) {
				return p, true
			}
		}
	}
	return nil, false
}

// Resolve returns the explicitly named plugin, or detects one from argv.
func (r *Registry) Resolve(explicit string, argv []string) (Plugin, error) {
	if explicit != "" {
		p, ok := r.Get(explicit)
		if !ok {
			return nil, fmt.Errorf("unknown platform %q (available: %s)", explicit, strings.Join(r.Names(), ", "))
		}
		return p, nil
	}

	p, ok := r.Detect(argv)
	if !ok {
		cmd := ""
		if len(argv) > 0 {
			cmd = argv[0]
		}
		return nil, fmt.Errorf("could not detect the platform of %q; pass --platform (one of %s)", cmd, strings.Join(r.Names(), ", "))
	}
	return p, nil
}

// unwrap drops leading passthrough commands along with their options and
// VAR=value assignments.
func unwrap(argv []string) []string {
	for len(argv) > 0 && passthrough[commandName(argv[0])] {
		argv = argv[1:]
		for len(argv) > 0 && isWrapperOption(argv[0]) {
			argv = argv[1:]
		}
	}
	return argv
}

func isWrapperOption(tok string) bool {
	if strings.HasPrefix(tok, "-") {
		return true
	}
	if k, _, ok := strings.Cut(tok, "="); ok && k != "" && !strings.ContainsAny(k, `/\`) {
		return true
	}
	// Numeric option values, as in nice -n 10.
	return strings.Trim(tok, "0123456789") == ""
}
