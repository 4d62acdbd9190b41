// Package rules decides which modules belong to the unloaded partition.
//
// A module is unloaded when it is named in a static list or when a Risor
// expression evaluated with the global name set to the module name is
// truthy, for example:
//
//	strings.has_prefix(name, "legacy-") || name in ["docs", "samples"]
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/risor-io/risor"
)

// Predicate is the unloaded-module predicate. It is safe for concurrent use.
type Predicate struct {
	names  map[string]bool
	expr   string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]bool
}

// Option configures a Predicate.
type Option func(*Predicate)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Predicate) { p.logger = l }
}

// New returns a predicate over a static list of module names and an
// optional expression. The expression is evaluated once up front so syntax
// errors surface here.
func New(names []string, expr string, opts ...Option) (*Predicate, error) {
	p := &Predicate{
		names:  make(map[string]bool, len(names)),
		expr:   expr,
		logger: slog.Default(),
		cache:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, n := range names {
		p.names[n] = true
	}
	if expr != "" {
		if _, err := p.eval(context.Background(), ""); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Static returns a predicate over names only.
func Static(names ...string) *Predicate {
	p, _ := New(names, "")
	return p
}

// Names returns the static module names, sorted.
func (p *Predicate) Names() []string {
	out := make([]string, 0, len(p.names))
	for n := range p.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Expression returns the rule expression, empty if none.
func (p *Predicate) Expression() string { return p.expr }

// With returns a predicate whose static list is names and whose expression
// is unchanged.
func (p *Predicate) With(names []string) *Predicate {
	next, err := New(names, p.expr, WithLogger(p.logger))
	if err != nil {
		// The expression compiled when p was built.
		next = Static(names...)
		next.expr = p.expr
	}
	return next
}

// Unloaded reports whether the module called name is unloaded.
func (p *Predicate) Unloaded(ctx context.Context, name string) (bool, error) {
	if p.names[name] {
		return true, nil
	}
	if p.expr == "" {
		return false, nil
	}
	p.mu.Lock()
	v, ok := p.cache[name]
	p.mu.Unlock()
	if ok {
		return v, nil
	}
	v, err := p.eval(ctx, name)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	p.cache[name] = v
	p.mu.Unlock()
	return v, nil
}

// Func adapts the predicate to the callback the reconciler consumes. An
// evaluation error is logged and the module stays loaded.
func (p *Predicate) Func(ctx context.Context) func(name string) bool {
	return func(name string) bool {
		v, err := p.Unloaded(ctx, name)
		if err != nil {
			p.logger.Warn("unloaded rule failed", "component", "rules", "module", name, "error", err)
			return false
		}
		return v
	}
}

func (p *Predicate) eval(ctx context.Context, name string) (bool, error) {
	res, err := risor.Eval(ctx, p.expr, risor.WithGlobal("name", name))
	if err != nil {
		return false, fmt.Errorf("rules: expression %q: %w", p.expr, err)
	}
	return res.IsTruthy(), nil
}
