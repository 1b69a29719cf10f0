package gate

import (
	"fmt"
	"strings"

	"github.com/go-git/go-billy/v5"
	"go.uber.org/zap"
)

// remediation maps gate names to a static fix-it hint used when a failing
// gate returns no message of its own.
var remediation = map[string]string{
	GateEntrypoint:   "Create a non-empty index.html at the project root.",
	GatePlaceholder:  "Replace remaining placeholder text (lorem ipsum, TODO, FIXME) with real content.",
	GateAssetLinks:   "Every local src/href in index.html must point at a file that exists.",
	GateRuntimeError: "Fix the runtime errors reported by the preview before finishing.",
}

// Summary aggregates one full run of the pipeline.
type Summary struct {
	Results []Result
}

// Pass reports whether every gate passed.
func (s Summary) Pass() bool {
	for _, r := range s.Results {
		if !r.Pass {
			return false
		}
	}
	return true
}

// FailingNames returns the names of all failing gates, in run order.
func (s Summary) FailingNames() []string {
	var names []string
	for _, r := range s.Results {
		if !r.Pass {
			names = append(names, r.Name)
		}
	}
	return names
}

// Feedback renders the failing gates into the text relayed to the next
// iteration. Each failing gate contributes its own message, or the static
// remediation hint when it produced none.
func (s Summary) Feedback() string {
	var b strings.Builder
	b.WriteString("Completion rejected by quality gates:\n")
	for _, r := range s.Results {
		if r.Pass {
			continue
		}
		msg := r.Message
		if msg == "" {
			msg = remediation[r.Name]
		}
		fmt.Fprintf(&b, "- %s: %s\n", r.Name, msg)
	}
	return b.String()
}

// Runner executes a fixed, ordered set of gates.
type Runner struct {
	gates []Gate
	log   *zap.Logger
}

// NewRunner creates a Runner over the given gates, preserving order.
func NewRunner(gates []Gate, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{gates: gates, log: log}
}

// Gates returns the configured gate names in run order.
func (r *Runner) Gates() []string {
	names := make([]string, len(r.gates))
	for i, g := range r.gates {
		names[i] = g.Name()
	}
	return names
}

// Run checks every gate, unconditionally. There is no short-circuit: partial
// signal from every gate is more useful as feedback than fail-fast. The
// summary is recomputed fresh on every call and never cached.
func (r *Runner) Run(fsys billy.Filesystem, cwd string, gctx *Context) Summary {
	summary := Summary{Results: make([]Result, 0, len(r.gates))}
	for _, g := range r.gates {
		res := r.runOne(g, fsys, cwd, gctx)
		if !res.Pass {
			r.log.Debug("gate failed",
				zap.String("gate", res.Name),
				zap.String("message", res.Message))
		}
		summary.Results = append(summary.Results, res)
	}
	return summary
}

// runOne converts any panic inside a gate into a failing result instead of
// letting it escape into the loop.
func (r *Runner) runOne(g Gate, fsys billy.Filesystem, cwd string, gctx *Context) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("gate panicked", zap.String("gate", g.Name()), zap.Any("panic", rec))
			res = Result{
				Name:    g.Name(),
				Pass:    false,
				Message: fmt.Sprintf("gate crashed: %v", rec),
			}
		}
	}()
	res = g.Check(fsys, cwd, gctx)
	if res.Name == "" {
		res.Name = g.Name()
	}
	return res
}
