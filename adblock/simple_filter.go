package adblock

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// SimpleFilter is the in-tree adblock engine.
// Pure ||host^ rules live in radix trees keyed by reversed host; every other
// pattern is compiled to a regexp and scanned in list order.
type SimpleFilter struct {
	blockHosts  *HostMatcher
	exceptHosts *HostMatcher
	blocks      []*networkRule
	exceptions  []*networkRule
	count       int
}

// requestContext is the per-call view of a request shared by all rules.
type requestContext struct {
	url        string
	host       string
	sourceHost string
	mask       resourceMask
	thirdParty bool
}

// NewSimpleFilter compiles rules into a SimpleFilter.
func NewSimpleFilter(rules []string) (*SimpleFilter, error) {
	blockHosts := newHostMatcherBuilder()
	exceptHosts := newHostMatcherBuilder()
	f := &SimpleFilter{}

	err := forEachRule(rules, func(text string) error {
		r, err := parseNetworkRule(text, f.count)
		if err != nil {
			return err
		}
		f.count++

		switch {
		case r.host != "" && r.exception:
			exceptHosts.add(r.host, r)
		case r.host != "":
			blockHosts.add(r.host, r)
		case r.exception:
			f.exceptions = append(f.exceptions, r)
		default:
			f.blocks = append(f.blocks, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.blockHosts = blockHosts.commit()
	f.exceptHosts = exceptHosts.commit()
	return f, nil
}

// Match implements the FilterEngine interface.
// The earliest block rule in list order wins; a matching exception then
// turns the decision into Allow unless the block rule is $important.
func (f *SimpleFilter) Match(req *ClassifiedRequest, target *url.URL) MatchResult {
	rc := newRequestContext(req, target)

	block := f.firstBlock(rc)
	if block == nil {
		return MatchResult{Decision: Allow}
	}
	if !block.important {
		if exc := f.anyException(rc); exc != nil {
			return MatchResult{Decision: Allow, Rule: exc.text}
		}
	}
	return MatchResult{Decision: Block, Rule: block.text}
}

func (f *SimpleFilter) firstBlock(rc *requestContext) *networkRule {
	var best *networkRule
	f.blockHosts.Walk(rc.host, func(r *networkRule) bool {
		if (best == nil || r.order < best.order) && r.appliesTo(rc) {
			best = r
		}
		return false
	})
	for _, r := range f.blocks {
		if best != nil && r.order > best.order {
			break
		}
		if r.matches(rc) {
			return r
		}
	}
	return best
}

func (f *SimpleFilter) anyException(rc *requestContext) *networkRule {
	var found *networkRule
	f.exceptHosts.Walk(rc.host, func(r *networkRule) bool {
		if r.appliesTo(rc) {
			found = r
			return true
		}
		return false
	})
	if found != nil {
		return found
	}
	for _, r := range f.exceptions {
		if r.matches(rc) {
			return r
		}
	}
	return nil
}

// Count implements the FilterEngine interface.
func (f *SimpleFilter) Count() int {
	return f.count
}

func newRequestContext(req *ClassifiedRequest, target *url.URL) *requestContext {
	rc := &requestContext{
		url:  req.TargetURL,
		host: strings.ToLower(target.Hostname()),
		mask: maskOf(req.ResourceType),
	}
	if src, ok := ParseTarget(req.SourceURL); ok {
		rc.sourceHost = strings.ToLower(src.Hostname())
		rc.thirdParty = isThirdParty(rc.host, rc.sourceHost)
	}
	return rc
}

// isThirdParty compares registrable domains (eTLD+1) of the two hosts.
func isThirdParty(host, sourceHost string) bool {
	return registrableDomain(host) != registrableDomain(sourceHost)
}

func registrableDomain(host string) string {
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}
