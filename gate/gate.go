// Package gate implements the deterministic quality-gate pipeline that
// decides whether a completion attempt really finished the task.
//
// Gates substitute for model self-assessment: each one is an independent,
// side-effect-free validator over the produced artifact tree. The Runner
// always runs every gate, aggregates pass = AND, and renders failing gates
// into feedback text, which is the only channel back into the next loop
// iteration.
package gate

import (
	"sync"

	"github.com/go-git/go-billy/v5"
)

// Result is the outcome of a single gate check.
type Result struct {
	Name    string `json:"name"`
	Pass    bool   `json:"pass"`
	Message string `json:"message,omitempty"`
}

// Context carries shared observations gates may consult, such as runtime
// errors collected from the running artifact. It is optional; gates must
// tolerate a nil Context.
type Context struct {
	mu            sync.Mutex
	runtimeErrors []string
}

// AddRuntimeError records a runtime error observed while exercising the
// artifact (e.g. a console error reported by the preview host).
func (c *Context) AddRuntimeError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runtimeErrors = append(c.runtimeErrors, msg)
}

// RuntimeErrors returns a copy of the collected runtime errors.
func (c *Context) RuntimeErrors() []string {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.runtimeErrors))
	copy(out, c.runtimeErrors)
	return out
}

// Gate validates one property of the artifact tree.
//
// Check must be pure over (fsys, cwd, gctx) and must not panic; the Runner
// still guards against panics because a fault here would otherwise kill the
// whole task.
type Gate interface {
	Name() string
	Check(fsys billy.Filesystem, cwd string, gctx *Context) Result
}

// GateFunc adapts a plain function to the Gate interface.
type GateFunc struct {
	GateName string
	Fn       func(fsys billy.Filesystem, cwd string, gctx *Context) Result
}

func (g GateFunc) Name() string { return g.GateName }

func (g GateFunc) Check(fsys billy.Filesystem, cwd string, gctx *Context) Result {
	return g.Fn(fsys, cwd, gctx)
}
