package adblock

import (
	"fmt"
	"net/url"
	"strings"
)

// FilterEngine is the interface for compiled adblock engines.
// Implementations are immutable after construction and safe for concurrent use.
type FilterEngine interface {
	// Match decides a request whose target URL has already been parsed.
	Match(req *ClassifiedRequest, target *url.URL) MatchResult
	// Count returns the number of compiled network rules.
	Count() int
}

// RuleSet is a compiled, read-only collection of block and exception rules.
// It is built once and shared by every concurrent caller without locking;
// a refresh builds a new RuleSet rather than editing this one.
type RuleSet struct {
	kind   EngineKind
	engine FilterEngine
}

// Build compiles rules with the chosen engine. Compilation is eager and
// all-or-nothing: the first invalid rule aborts the build with a
// *RuleCompileError.
func Build(kind EngineKind, rules []string) (*RuleSet, error) {
	kind = EngineKind(strings.ToLower(strings.TrimSpace(string(kind))))
	if kind == "" {
		kind = EngineURLFilter
	}

	var engine FilterEngine
	var err error
	switch kind {
	case EngineURLFilter:
		engine, err = NewURLFilterEngine(rules)
	case EngineSimple:
		engine, err = NewSimpleFilter(rules)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, kind)
	}
	if err != nil {
		return nil, err
	}

	return &RuleSet{kind: kind, engine: engine}, nil
}

// Decide returns the filtering decision for req. It never fails: a nil
// RuleSet, a nil request or a target URL that does not parse all yield Allow.
func (rs *RuleSet) Decide(req *ClassifiedRequest) MatchResult {
	if rs == nil || rs.engine == nil || req == nil {
		return MatchResult{Decision: Allow}
	}
	target, ok := ParseTarget(req.TargetURL)
	if !ok {
		return MatchResult{Decision: Allow}
	}
	return rs.engine.Match(req, target)
}

// Count returns the number of compiled network rules.
func (rs *RuleSet) Count() int {
	if rs == nil || rs.engine == nil {
		return 0
	}
	return rs.engine.Count()
}

// Kind returns the engine the RuleSet was built with.
func (rs *RuleSet) Kind() EngineKind {
	if rs == nil {
		return ""
	}
	return rs.kind
}

// ParseTarget parses raw as an absolute URL with a scheme and a host.
func ParseTarget(raw string) (*url.URL, bool) {
	if strings.TrimSpace(raw) != raw || raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return nil, false
	}
	return u, true
}

// cosmeticMarkers identify element-hiding and scriptlet rules, which are
// accepted in lists but never take part in request matching.
var cosmeticMarkers = []string{"##", "#@#", "#?#", "#@?#", "#$#", "#@$#", "#%#", "#@%#"}

// isSkippable reports whether a list line carries no network rule.
func isSkippable(line string) bool {
	if line == "" || strings.HasPrefix(line, "!") || strings.HasPrefix(line, "#") {
		return true
	}
	if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
		return true
	}
	for _, m := range cosmeticMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

// forEachRule calls fn for every network rule line, numbering lines from 1.
// The first error returned by fn is wrapped into a *RuleCompileError.
func forEachRule(rules []string, fn func(text string) error) error {
	for i, raw := range rules {
		text := strings.TrimSpace(raw)
		if isSkippable(text) {
			continue
		}
		if err := fn(text); err != nil {
			return &RuleCompileError{Line: i + 1, Rule: text, Err: err}
		}
	}
	return nil
}
