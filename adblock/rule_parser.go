package adblock

import (
	"fmt"
	"regexp"
	"strings"
)

// resourceMask is a bit set of ResourceType values.
type resourceMask uint8

const (
	maskScript resourceMask = 1 << iota
	maskStyle
	maskImage
	maskOther
	// maskPage covers document and popup loads, which never reach the
	// sub-resource pipeline.
	maskPage
)

func maskOf(t ResourceType) resourceMask {
	switch t {
	case ResourceScript:
		return maskScript
	case ResourceStyle:
		return maskStyle
	case ResourceImage:
		return maskImage
	default:
		return maskOther
	}
}

// typeOptions maps $option names onto resource types. Types the classifier
// never produces fold into maskOther.
var typeOptions = map[string]resourceMask{
	"script":         maskScript,
	"stylesheet":     maskStyle,
	"css":            maskStyle,
	"image":          maskImage,
	"other":          maskOther,
	"subdocument":    maskOther,
	"frame":          maskOther,
	"xmlhttprequest": maskOther,
	"xhr":            maskOther,
	"font":           maskOther,
	"media":          maskOther,
	"object":         maskOther,
	"ping":           maskOther,
	"websocket":      maskOther,
	"webrtc":         maskOther,
	"document":       maskPage,
	"doc":            maskPage,
	"popup":          maskPage,
}

// inertOptions are accepted but make the rule irrelevant to sub-resource
// matching: cosmetic exceptions, page-level switches and response modifiers.
var inertOptions = map[string]bool{
	"elemhide":     true,
	"ehide":        true,
	"generichide":  true,
	"ghide":        true,
	"specifichide": true,
	"shide":        true,
	"genericblock": true,
	"content":      true,
	"jsinject":     true,
	"urlblock":     true,
	"extension":    true,
	"stealth":      true,
	"badfilter":    true,
	"csp":          true,
	"removeparam":  true,
	"permissions":  true,
}

// valueOptions only alter the served response of a block; the rule still
// blocks.
var valueOptions = map[string]bool{
	"redirect":      true,
	"redirect-rule": true,
	"rewrite":       true,
}

// networkRule is one compiled rule of the simple engine.
type networkRule struct {
	text      string
	order     int
	exception bool
	important bool
	matchCase bool
	// inert rules compile but never match a sub-resource request.
	inert bool

	// host is set for pure ||host^ rules, which are indexed by HostMatcher
	// instead of being matched with re.
	host string
	re   *regexp.Regexp

	permitted resourceMask // 0 means every type
	excluded  resourceMask

	// thirdParty: 0 any, 1 third-party only, -1 first-party only.
	thirdParty int8

	domains         []string
	excludedDomains []string
}

// parseNetworkRule compiles a single network rule in Adblock Plus syntax.
func parseNetworkRule(text string, order int) (*networkRule, error) {
	r := &networkRule{text: text, order: order}

	s := text
	if strings.HasPrefix(s, "@@") {
		r.exception = true
		s = s[2:]
	}

	pattern, options := splitOptions(s)
	if err := r.applyOptions(options); err != nil {
		return nil, err
	}

	switch {
	case pattern == "" || pattern == "*":
		if options == "" {
			return nil, ErrEmptyPattern
		}
		r.re = matchAll
	case isRegexPattern(pattern):
		expr := pattern[1 : len(pattern)-1]
		if !r.matchCase {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		r.re = re
	default:
		if host, ok := pureHostAnchor(pattern); ok {
			r.host = host
			return r, nil
		}
		re, err := regexp.Compile(patternToRegexp(pattern, r.matchCase))
		if err != nil {
			return nil, err
		}
		r.re = re
	}

	return r, nil
}

var matchAll = regexp.MustCompile("")

// splitOptions separates "pattern$opt1,opt2". A '$' inside a /regex/ is
// part of the pattern.
func splitOptions(s string) (pattern, options string) {
	idx := strings.LastIndex(s, "$")
	if idx < 0 {
		return s, ""
	}
	if strings.HasPrefix(s, "/") {
		if end := strings.LastIndex(s, "/"); end > 0 && idx < end {
			return s, ""
		}
	}
	return s[:idx], s[idx+1:]
}

func isRegexPattern(p string) bool {
	return len(p) > 2 && strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/")
}

// pureHostAnchor recognises ||host^ with nothing but a hostname in between.
func pureHostAnchor(p string) (string, bool) {
	if !strings.HasPrefix(p, "||") || !strings.HasSuffix(p, "^") {
		return "", false
	}
	host := p[2 : len(p)-1]
	if host == "" {
		return "", false
	}
	for _, ch := range host {
		if !(ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '-' || ch == '.') {
			return "", false
		}
	}
	return strings.ToLower(host), true
}

// patternToRegexp translates an Adblock Plus URL pattern into a Go regexp.
func patternToRegexp(p string, matchCase bool) string {
	var b strings.Builder
	if !matchCase {
		b.WriteString("(?i)")
	}

	switch {
	case strings.HasPrefix(p, "||"):
		b.WriteString(`^[a-z][a-z0-9+.\-]*://(?:[^/?#]*\.)?`)
		p = p[2:]
	case strings.HasPrefix(p, "|"):
		b.WriteString("^")
		p = p[1:]
	}

	endAnchor := false
	if strings.HasSuffix(p, "|") {
		endAnchor = true
		p = p[:len(p)-1]
	}

	for _, ch := range p {
		switch ch {
		case '*':
			b.WriteString(".*")
		case '^':
			b.WriteString(`(?:[^\w.%\-]|$)`)
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}

	if endAnchor {
		b.WriteString("$")
	}
	return b.String()
}

func (r *networkRule) applyOptions(options string) error {
	if options == "" {
		return nil
	}
	for _, opt := range strings.Split(options, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		neg := strings.HasPrefix(opt, "~")
		name := strings.ToLower(strings.TrimPrefix(opt, "~"))

		if m, ok := typeOptions[name]; ok {
			if neg {
				r.excluded |= m
			} else {
				r.permitted |= m
			}
			continue
		}

		key, _, _ := strings.Cut(name, "=")
		if inertOptions[key] {
			r.inert = true
			continue
		}
		if valueOptions[key] && !neg {
			continue
		}

		switch {
		case name == "all" && !neg:
		case name == "third-party" || name == "3p":
			r.thirdParty = 1
			if neg {
				r.thirdParty = -1
			}
		case name == "first-party" || name == "1p":
			r.thirdParty = -1
			if neg {
				r.thirdParty = 1
			}
		case name == "match-case" && !neg:
			r.matchCase = true
		case name == "important" && !neg:
			r.important = true
		case strings.HasPrefix(name, "domain=") && !neg:
			if err := r.parseDomains(strings.TrimPrefix(name, "domain=")); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s", ErrUnknownOption, opt)
		}
	}
	return nil
}

func (r *networkRule) parseDomains(list string) error {
	for _, d := range strings.Split(list, "|") {
		d = strings.TrimSpace(d)
		excluded := strings.HasPrefix(d, "~")
		d = strings.TrimPrefix(d, "~")
		if d == "" {
			return fmt.Errorf("%w: empty domain in domain=", ErrUnknownOption)
		}
		if excluded {
			r.excludedDomains = append(r.excludedDomains, d)
		} else {
			r.domains = append(r.domains, d)
		}
	}
	return nil
}

// appliesTo checks the rule options against the request context.
func (r *networkRule) appliesTo(rc *requestContext) bool {
	if r.inert {
		return false
	}
	if r.permitted != 0 && r.permitted&rc.mask == 0 {
		return false
	}
	if r.excluded&rc.mask != 0 {
		return false
	}
	switch r.thirdParty {
	case 1:
		if !rc.thirdParty {
			return false
		}
	case -1:
		if rc.thirdParty {
			return false
		}
	}
	if len(r.domains) > 0 && !hostInList(rc.sourceHost, r.domains) {
		return false
	}
	if len(r.excludedDomains) > 0 && hostInList(rc.sourceHost, r.excludedDomains) {
		return false
	}
	return true
}

// matches reports whether the rule pattern and options both accept the request.
// Host-indexed rules are pre-filtered by HostMatcher and only check options.
func (r *networkRule) matches(rc *requestContext) bool {
	if r.re != nil && !r.re.MatchString(rc.url) {
		return false
	}
	return r.appliesTo(rc)
}

// hostInList reports whether host equals, or is a subdomain of, any entry.
func hostInList(host string, list []string) bool {
	if host == "" {
		return false
	}
	for _, d := range list {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
