package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"httprpc/internal/protocol"
	"httprpc/internal/registry"
	"httprpc/internal/scope"
)

// DefaultExecutionTimeout is the default timeout for plugin execution
const DefaultExecutionTimeout = 30 * time.Second

// methodDirectiveRegex matches @method directive in comments
var methodDirectiveRegex = regexp.MustCompile(`(?m)^//\s*@method\s+(\S+)`)

// Manager discovers JavaScript plugins and serves them through a registry
type Manager struct {
	plugins map[string]*Plugin // method -> plugin
	caller  Caller
	logger  zerolog.Logger
	timeout time.Duration
	mu      sync.RWMutex
}

// NewManager creates a new Manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		plugins: make(map[string]*Plugin),
		logger:  logger.With().Str("component", "plugin-manager").Logger(),
		timeout: DefaultExecutionTimeout,
	}
}

// SetTimeout sets the execution timeout for plugins
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.timeout = timeout
}

// SetCaller enables rpc.call inside scripts
func (m *Manager) SetCaller(caller Caller) {
	m.caller = caller
}

// LoadFromDirectory reads all .js plugins from a directory. Scripts are
// compiled when their method is first requested.
func (m *Manager) LoadFromDirectory(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		m.logger.Warn().Str("directory", dir).Msg("plugins directory does not exist")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat plugins directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("plugins path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read plugins directory: %w", err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".js") {
			continue
		}

		if err := m.readPlugin(filepath.Join(dir, entry.Name())); err != nil {
			m.logger.Error().
				Err(err).
				Str("file", entry.Name()).
				Msg("failed to read plugin")
			continue
		}
		loadedCount++
	}

	m.logger.Info().
		Int("loaded", loadedCount).
		Str("directory", dir).
		Msg("plugins read")

	return nil
}

// readPlugin reads a single plugin file
func (m *Manager) readPlugin(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read plugin file: %w", err)
	}

	script := string(content)

	method := extractMethodDirective(script)
	if method == "" {
		return fmt.Errorf("plugin missing @method directive")
	}
	if _, exists := m.plugins[method]; exists {
		return fmt.Errorf("duplicate method: %s", method)
	}

	name := strings.TrimSuffix(filepath.Base(path), ".js")
	m.plugins[method] = &Plugin{
		Name:   name,
		Method: method,
		Path:   path,
		Script: script,
	}

	m.logger.Debug().
		Str("name", name).
		Str("method", method).
		Str("file", filepath.Base(path)).
		Msg("plugin read")

	return nil
}

// extractMethodDirective extracts the method name from @method directive
func extractMethodDirective(script string) string {
	matches := methodDirectiveRegex.FindStringSubmatch(script)
	if len(matches) >= 2 {
		return matches[1]
	}
	return ""
}

// Methods returns all plugin methods, sorted
func (m *Manager) Methods() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	methods := make([]string, 0, len(m.plugins))
	for method := range m.plugins {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}

// Register binds a loader for every plugin method in reg
func (m *Manager) Register(reg *registry.Registry) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for method, p := range m.plugins {
		p := p
		reg.RegisterLoader(method, func(ctx context.Context, _ string) (registry.Handler, error) {
			return m.load(p)
		})
	}
}

// load compiles a plugin and builds the handler for it. A script defining
// executeBatch becomes a grouping handler; one defining execute, a direct one.
func (m *Manager) load(p *Plugin) (registry.Handler, error) {
	program, err := goja.Compile(p.Path, p.Script, false)
	if err != nil {
		return registry.Handler{}, fmt.Errorf("%s: %w", p.Name, err)
	}

	probe := NewRuntime(zerolog.Nop())
	if err := probe.Run(program); err != nil {
		return registry.Handler{}, fmt.Errorf("%s: %w", p.Name, err)
	}

	c := &compiled{plugin: p, program: program}
	switch {
	case probe.HasFunction(FuncExecuteBatch):
		c.batch = true
	case probe.HasFunction(FuncExecute):
	default:
		return registry.Handler{}, fmt.Errorf("%s: script defines neither %s nor %s", p.Name, FuncExecute, FuncExecuteBatch)
	}

	m.logger.Info().
		Str("name", p.Name).
		Str("method", p.Method).
		Bool("batch", c.batch).
		Msg("plugin loaded")

	if c.batch {
		return registry.Grouping(func(jobs []*protocol.Job) []*protocol.JobBatch {
			return []*protocol.JobBatch{m.batch(c, jobs)}
		}), nil
	}
	return registry.Direct(func(ctx context.Context, sc *scope.Scope, raw []json.RawMessage) (any, error) {
		args, err := decodeArgs(raw)
		if err != nil {
			return nil, err
		}
		return m.execute(ctx, c, sc, FuncExecute, args...)
	}), nil
}

// batch builds the single batch running executeBatch over every job
func (m *Manager) batch(c *compiled, jobs []*protocol.Job) *protocol.JobBatch {
	return &protocol.JobBatch{
		Jobs: jobs,
		Execute: func(ctx context.Context, sc *scope.Scope) error {
			argsList := make([]any, len(jobs))
			for i, job := range jobs {
				args, err := decodeArgs(job.Args)
				if err != nil {
					return fmt.Errorf("job %d: %w", job.Index, err)
				}
				argsList[i] = args
			}

			result, err := m.execute(ctx, c, sc, FuncExecuteBatch, argsList)
			if err != nil {
				return err
			}

			results, ok := result.([]any)
			if !ok {
				return fmt.Errorf("%s must return an array", FuncExecuteBatch)
			}
			if len(results) != len(jobs) {
				return fmt.Errorf("%s returned %d results for %d jobs", FuncExecuteBatch, len(results), len(jobs))
			}
			for i, job := range jobs {
				job.Result = results[i]
			}
			return nil
		},
	}
}

// execute runs fn in a fresh runtime bound to sc
func (m *Manager) execute(ctx context.Context, c *compiled, sc *scope.Scope, fn string, args ...any) (any, error) {
	runtime := NewRuntime(m.logger.With().Str("plugin", c.plugin.Name).Logger())
	runtime.BindScope(sc)
	if m.caller != nil {
		runtime.BindCaller(ctx, sc, m.caller)
	}

	timer := time.AfterFunc(m.timeout, func() {
		runtime.Interrupt(ErrTimeout)
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() {
		runtime.Interrupt(ctx.Err())
	})
	defer stop()

	if err := runtime.Run(c.program); err != nil {
		return nil, err
	}

	result, err := runtime.CallFunction(fn, args...)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			m.logger.Warn().
				Str("method", c.plugin.Method).
				Dur("timeout", m.timeout).
				Msg("plugin execution timed out")
		}
		return nil, err
	}
	return result, nil
}
