// Package router implements spec.md §4.8: pattern-match tool name →
// process route → invoke with timeout. Route matching is compiled once
// at construction (spec.md §9's "compile patterns once at registry
// load"); invocation is modeled as a tagged variant with an Invoker
// interface per kind, grounded on the teacher's
// infrastructure/tool/executor.go dispatch shape.
package router

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/ngoclaw/llmcoordinator/internal/errkit"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
	"golang.org/x/time/rate"
)

// InvokeContext is spec.md §4.8's ctx = {provider, model, metadata,
// logger, callProgress}.
type InvokeContext struct {
	Provider     string
	Model        string
	Metadata     map[string]any
	Logger       telemetry.Logger
	CallProgress func(delta string)
}

// Invoker executes one matched route. route carries the kind-specific
// invocation details (module name, command, URL, MCP server id).
type Invoker interface {
	Invoke(ctx context.Context, route model.RouteInvoke, toolName, callID string, args map[string]any, ic InvokeContext) (any, error)
}

type compiledRoute struct {
	route model.ProcessRoute
	regex *regexp.Regexp // only for MatchRegex/MatchGlob
}

// Router dispatches tool calls per spec.md §4.8.
type Router struct {
	routes     []compiledRoute
	invokers   map[model.InvokeKind]Invoker
	defaultTO  time.Duration
	limiter    *rate.Limiter // limits how fast invocations start, across every call on this Router; SPEC_FULL.md §4.16
	logger     telemetry.Logger
}

// New compiles routes once and builds a Router. defaultTimeout is used
// when a route omits TimeoutMs. maxConcurrent configures the limiter:
// at most maxConcurrent invocations start per second, with a burst of
// maxConcurrent (0 disables the limiter). Invocations still running are
// not counted.
func New(routes []model.ProcessRoute, invokers map[model.InvokeKind]Invoker, defaultTimeout time.Duration, maxConcurrent int, logger telemetry.Logger) (*Router, error) {
	compiled := make([]compiledRoute, 0, len(routes))
	for _, r := range routes {
		cr := compiledRoute{route: r}
		if r.Match.Kind == model.MatchRegex {
			re, err := regexp.Compile(r.Match.Pattern)
			if err != nil {
				return nil, fmt.Errorf("route %s: compile regex: %w", r.ID, err)
			}
			cr.regex = re
		} else if r.Match.Kind == model.MatchGlob {
			re, err := globToRegexp(r.Match.Pattern)
			if err != nil {
				return nil, fmt.Errorf("route %s: compile glob: %w", r.ID, err)
			}
			cr.regex = re
		}
		compiled = append(compiled, cr)
	}

	// golang.org/x/time/rate is a token bucket: a token is taken when an
	// invocation starts and is not given back when it ends, so this caps
	// the start rate, not the number of invocations running at once.
	var limiter *rate.Limiter
	if maxConcurrent > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxConcurrent), maxConcurrent)
	}

	return &Router{routes: compiled, invokers: invokers, defaultTO: defaultTimeout, limiter: limiter, logger: logger}, nil
}

// RouteAndInvoke implements spec.md §4.8's public contract.
func (r *Router) RouteAndInvoke(ctx context.Context, toolName, callID string, args map[string]any, ic InvokeContext) (any, error) {
	route, ok := r.match(toolName)
	if !ok {
		return nil, &errkit.ToolExecutionError{ToolName: toolName, Message: "no route for name"}
	}

	invoker, ok := r.invokers[route.Invoke.Kind]
	if !ok {
		return nil, &errkit.ManifestError{Kind: "route_kind", ID: string(route.Invoke.Kind), Message: "no invoker registered for kind"}
	}

	timeout := r.defaultTO
	if route.TimeoutMs > 0 {
		timeout = time.Duration(route.TimeoutMs) * time.Millisecond
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, &errkit.ToolExecutionError{ToolName: toolName, Message: "concurrency limiter wait", Cause: err}
		}
	}

	invokeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := invoker.Invoke(invokeCtx, route.Invoke, toolName, callID, args, ic)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		return wrapResult(o.result), nil
	case <-invokeCtx.Done():
		return nil, &errkit.ToolExecutionError{
			ToolName: toolName,
			Message:  fmt.Sprintf("Tool execution timeout after %.0fs", timeout.Seconds()),
			Cause:    invokeCtx.Err(),
		}
	}
}

// match scans routes in manifest order; first match wins.
func (r *Router) match(toolName string) (model.ProcessRoute, bool) {
	for _, cr := range r.routes {
		switch cr.route.Match.Kind {
		case model.MatchExact:
			if toolName == cr.route.Match.Pattern {
				return cr.route, true
			}
		case model.MatchPrefix:
			if strings.HasPrefix(toolName, cr.route.Match.Pattern) {
				return cr.route, true
			}
		case model.MatchRegex, model.MatchGlob:
			if cr.regex != nil && cr.regex.MatchString(toolName) {
				return cr.route, true
			}
		}
	}
	return model.ProcessRoute{}, false
}

// wrapResult implements spec.md §4.8's "result is always wrapped to
// {result: …} if the handler returned a bare value" rule.
func wrapResult(v any) any {
	if _, ok := v.(map[string]any); ok {
		return v
	}
	return map[string]any{"result": v}
}

func globToRegexp(pattern string) (*regexp.Regexp, error) {
	// path.Match-style glob translated to an anchored regexp: '*' -> any
	// run of characters, '?' -> one character.
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	// validate the pattern is a legal glob at all via path.Match on itself
	if _, err := path.Match(pattern, pattern); err != nil {
		return nil, err
	}
	return re, nil
}
