package adblock

import (
	"net/url"
	"strings"

	"github.com/AdguardTeam/urlfilter"
	"github.com/AdguardTeam/urlfilter/filterlist"
	"github.com/AdguardTeam/urlfilter/rules"
)

// urlfilterListID is the filter list ID used for the single in-memory list.
const urlfilterListID = 1

// URLFilterEngine matches requests with AdGuard's urlfilter network engine.
type URLFilterEngine struct {
	engine    *urlfilter.NetworkEngine
	ruleCount int
}

// NewURLFilterEngine validates every rule with the urlfilter parser and then
// builds a network engine over the accepted rules.
func NewURLFilterEngine(list []string) (*URLFilterEngine, error) {
	var accepted []string
	err := forEachRule(list, func(text string) error {
		r, err := rules.NewRule(text, urlfilterListID)
		if err != nil {
			return err
		}
		// Host-file style rules compile but never take part in request matching.
		if _, ok := r.(*rules.NetworkRule); ok {
			accepted = append(accepted, text)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stringList := filterlist.NewString(&filterlist.StringConfig{
		RulesText:      strings.Join(accepted, "\n"),
		ID:             urlfilterListID,
		IgnoreCosmetic: true,
	})

	storage, err := filterlist.NewRuleStorage([]filterlist.Interface{stringList})
	if err != nil {
		return nil, err
	}

	return &URLFilterEngine{
		engine:    urlfilter.NewNetworkEngine(storage),
		ruleCount: len(accepted),
	}, nil
}

func (e *URLFilterEngine) Match(req *ClassifiedRequest, _ *url.URL) MatchResult {
	if e.engine == nil {
		return MatchResult{Decision: Allow}
	}

	r := rules.NewRequest(req.TargetURL, req.SourceURL, toRequestType(req.ResourceType))
	rule, matched := e.engine.Match(r)
	if !matched || rule == nil {
		return MatchResult{Decision: Allow}
	}

	ruleText := rule.Text()
	if strings.HasPrefix(ruleText, "@@") {
		return MatchResult{Decision: Allow, Rule: ruleText}
	}
	return MatchResult{Decision: Block, Rule: ruleText}
}

func (e *URLFilterEngine) Count() int {
	return e.ruleCount
}

func toRequestType(t ResourceType) rules.RequestType {
	switch t {
	case ResourceScript:
		return rules.TypeScript
	case ResourceStyle:
		return rules.TypeStylesheet
	case ResourceImage:
		return rules.TypeImage
	default:
		return rules.TypeOther
	}
}
