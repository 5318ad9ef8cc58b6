// Package runner implements C2, the Language Runner: a polymorphic
// capability keyed by Program.language that builds the OS command line,
// arguments, environment, and working directory needed to invoke a
// materialized program, for the process supervisor (C3) to spawn.
package runner

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/smilemakc/mbflow/pkg/models"
)

// Plan is everything the process supervisor (C3) needs to spawn a
// program invocation.
type Plan struct {
	Cmd             string
	Args            []string
	Env             []string
	WorkDir         string
	ExpectedOutputs []string
}

// Runner is implemented once per supported Program.Language.
type Runner interface {
	CanHandle(lang models.Language) bool
	Build(sandboxRoot string, params map[string]interface{}) (Plan, error)
}

// Registry selects a Runner by language. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	runners []Runner
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry creates a registry pre-populated with the runners
// for every language spec.md §4.2 names as supported.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(PythonRunner{})
	r.Register(CSharpRunner{})
	r.Register(JavaRunner{})
	r.Register(NodeJSRunner{})
	return r
}

// Register adds a runner to the registry.
func (r *Registry) Register(runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners = append(r.runners, runner)
}

// Get returns the runner that handles lang.
func (r *Registry) Get(lang models.Language) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, runner := range r.runners {
		if runner.CanHandle(lang) {
			return runner, nil
		}
	}
	return nil, models.ErrRunnerNotFound
}

// marshalParams serializes params to JSON for the first CLI argument, the
// convention every runner below shares (spec.md §4.2: "params serialized
// as first CLI arg JSON").
func marshalParams(params map[string]interface{}) (string, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return string(data), nil
}

func mergeEnv(defaults map[string]string) []string {
	env := make([]string, 0, len(defaults))
	for k, v := range defaults {
		env = append(env, k+"="+v)
	}
	return env
}

// PythonRunner invokes python3 <entrypoint> <params-json> from the
// sandbox root. It looks for main.py as the conventional entrypoint.
type PythonRunner struct{}

func (PythonRunner) CanHandle(lang models.Language) bool { return lang == models.LanguagePython }

func (PythonRunner) Build(sandboxRoot string, params map[string]interface{}) (Plan, error) {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Cmd:     "python3",
		Args:    []string{filepath.Join(sandboxRoot, "main.py"), paramsJSON},
		Env:     mergeEnv(map[string]string{"PYTHONUNBUFFERED": "1"}),
		WorkDir: sandboxRoot,
	}, nil
}

// CSharpRunner runs a .NET console project in the sandbox with
// `dotnet run --project <sandbox> -- <params JSON>`, which compiles and
// runs in one step; no pre-published entrypoint (Program.dll) is used.
type CSharpRunner struct{}

func (CSharpRunner) CanHandle(lang models.Language) bool { return lang == models.LanguageCSharp }

func (CSharpRunner) Build(sandboxRoot string, params map[string]interface{}) (Plan, error) {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Cmd:     "dotnet",
		Args:    []string{"run", "--project", sandboxRoot, "--", paramsJSON},
		Env:     mergeEnv(map[string]string{"DOTNET_CLI_TELEMETRY_OPTOUT": "1"}),
		WorkDir: sandboxRoot,
	}, nil
}

// JavaRunner compiles Main.java with javac then runs it with java, both
// rooted at the sandbox so classpath resolution needs no extra flags.
type JavaRunner struct{}

func (JavaRunner) CanHandle(lang models.Language) bool { return lang == models.LanguageJava }

func (JavaRunner) Build(sandboxRoot string, params map[string]interface{}) (Plan, error) {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return Plan{}, err
	}
	// The supervisor invokes Cmd once; Java needs compile-then-run, so the
	// plan shells out through sh -c to sequence javac and java.
	script := fmt.Sprintf("javac Main.java && java Main %s", shellQuote(paramsJSON))
	return Plan{
		Cmd:     "sh",
		Args:    []string{"-c", script},
		WorkDir: sandboxRoot,
	}, nil
}

// NodeJSRunner invokes `node index.js <params-json>` from the sandbox
// root.
type NodeJSRunner struct{}

func (NodeJSRunner) CanHandle(lang models.Language) bool { return lang == models.LanguageNodeJS }

func (NodeJSRunner) Build(sandboxRoot string, params map[string]interface{}) (Plan, error) {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Cmd:     "node",
		Args:    []string{filepath.Join(sandboxRoot, "index.js"), paramsJSON},
		WorkDir: sandboxRoot,
	}, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
