package pipeline

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"zillafilter/adblock"
	"zillafilter/classifier"
	"zillafilter/fetcher"
	"zillafilter/logger"
	"zillafilter/stats"
)

// Request is one intercepted resource load.
type Request struct {
	ID  string
	URL string
}

// Header is a single relayed header line.
type Header = fetcher.Header

// Response is what the rendering surface receives for a Request.
type Response struct {
	StatusCode int
	Headers    []Header
	Body       []byte
}

// Fetcher performs the outbound GET for allowed requests.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error)
}

// Options 管线配置
type Options struct {
	DefaultSourceURL string
	BlockStatus      int // 拦截响应状态码，0 表示 200
}

// Pipeline classifies, filters and relays intercepted requests.
// Handle may be called from any number of goroutines at once.
type Pipeline struct {
	ruleSet atomic.Pointer[adblock.RuleSet]
	fetcher Fetcher
	stats   *stats.Stats

	defaultSourceURL string
	blockStatus      int
}

// New creates a Pipeline. rs may be nil, in which case every request is allowed
// until SwapRuleSet installs one. st may be nil.
func New(rs *adblock.RuleSet, f Fetcher, st *stats.Stats, opts Options) *Pipeline {
	if opts.BlockStatus == 0 {
		opts.BlockStatus = http.StatusOK
	}
	p := &Pipeline{
		fetcher:          f,
		stats:            st,
		defaultSourceURL: opts.DefaultSourceURL,
		blockStatus:      opts.BlockStatus,
	}
	p.ruleSet.Store(rs)
	return p
}

// SwapRuleSet atomically replaces the active rule set. Calls already past the
// decision step keep using the old one.
func (p *Pipeline) SwapRuleSet(rs *adblock.RuleSet) {
	old := p.ruleSet.Swap(rs)
	logger.Infof("[Pipeline] Rule set swapped: %d -> %d rules", old.Count(), rs.Count())
}

// RuleSet returns the active rule set.
func (p *Pipeline) RuleSet() *adblock.RuleSet {
	return p.ruleSet.Load()
}

// Handle processes req and always returns a non-nil Response.
func (p *Pipeline) Handle(ctx context.Context, req Request) *Response {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	log := logger.With("id", req.ID)

	classified, err := classifier.Classify(req.URL, p.defaultSourceURL)
	if err != nil {
		log.Warnf("[Pipeline] %v", err)
		if p.stats != nil {
			p.stats.RecordClassificationFailure()
		}
		return internalError()
	}

	result := p.ruleSet.Load().Decide(classified)
	if result.Blocked() {
		log.Debugf("[Pipeline] Blocked %s (rule: %s)", req.URL, result.Rule)
		if p.stats != nil {
			p.stats.RecordBlock(hostOf(req.URL), string(classified.ResourceType))
		}
		return &Response{StatusCode: p.blockStatus}
	}

	start := time.Now()
	res, err := p.fetcher.Fetch(ctx, req.URL)
	elapsed := time.Since(start)
	if err != nil {
		log.Warnf("[Pipeline] %v", err)
		if p.stats != nil {
			p.stats.RecordFetchFailure(string(classified.ResourceType), elapsed)
		}
		return internalError()
	}

	log.Debugf("[Pipeline] Allowed %s: %d, %d bytes in %v", req.URL, res.StatusCode, len(res.Body), elapsed)
	if p.stats != nil {
		p.stats.RecordAllow(string(classified.ResourceType), res.StatusCode, elapsed)
	}
	return &Response{
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
		Body:       res.Body,
	}
}

// Check returns the decision for rawURL without fetching it. An empty
// sourceURL falls back to the default source.
func (p *Pipeline) Check(rawURL, sourceURL string) (*adblock.ClassifiedRequest, adblock.MatchResult, error) {
	if sourceURL == "" {
		sourceURL = p.defaultSourceURL
	}
	classified, err := classifier.Classify(rawURL, sourceURL)
	if err != nil {
		return nil, adblock.MatchResult{Decision: adblock.Allow}, err
	}
	return classified, p.ruleSet.Load().Decide(classified), nil
}

func internalError() *Response {
	return &Response{StatusCode: http.StatusInternalServerError}
}

func hostOf(rawURL string) string {
	if u, ok := adblock.ParseTarget(rawURL); ok {
		return u.Hostname()
	}
	return ""
}
