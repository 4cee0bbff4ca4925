package adblock

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

// ResourceType is the coarse kind of a sub-resource load.
type ResourceType string

const (
	ResourceScript ResourceType = "script"
	ResourceStyle  ResourceType = "style"
	ResourceImage  ResourceType = "image"
	ResourceOther  ResourceType = "other"
)

// Valid reports whether t is one of the known resource types.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceScript, ResourceStyle, ResourceImage, ResourceOther:
		return true
	default:
		return false
	}
}

// ClassifiedRequest 是规则匹配所需的请求视图
type ClassifiedRequest struct {
	TargetURL    string
	SourceURL    string
	ResourceType ResourceType
}

// Decision is the outcome of matching one request.
type Decision int

const (
	Allow Decision = iota
	Block
)

func (d Decision) String() string {
	if d == Block {
		return "block"
	}
	return "allow"
}

// MatchResult 匹配结果
type MatchResult struct {
	Decision Decision
	Rule     string // 决定结果的规则文本，未命中时为空
}

// Blocked reports whether the request must be blocked.
func (r MatchResult) Blocked() bool {
	return r.Decision == Block
}

// EngineKind selects the rule engine implementation.
type EngineKind string

const (
	EngineURLFilter EngineKind = "urlfilter"
	EngineSimple    EngineKind = "simple"
)

const (
	// ErrUnknownEngine is returned by Build for an unsupported EngineKind.
	ErrUnknownEngine errors.Error = "unknown adblock engine"

	// ErrUnknownOption is wrapped by RuleCompileError for unsupported $options.
	ErrUnknownOption errors.Error = "unknown rule option"

	// ErrEmptyPattern is wrapped by RuleCompileError for rules without a pattern.
	ErrEmptyPattern errors.Error = "empty rule pattern"
)

// RuleCompileError reports the first rule that failed to compile.
// A RuleSet is never built from a partially valid list.
type RuleCompileError struct {
	Line int
	Rule string
	Err  error
}

func (e *RuleCompileError) Error() string {
	return fmt.Sprintf("compile rule %d %q: %v", e.Line, e.Rule, e.Err)
}

func (e *RuleCompileError) Unwrap() error {
	return e.Err
}
