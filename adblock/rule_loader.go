package adblock

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"zillafilter/logger"
)

const (
	defaultDownloadTimeout = 15 * time.Second
	maxRuleListBytes       = 50 * 1024 * 1024
)

// DefaultRules is the built-in list used when no other source is configured.
var DefaultRules = []string{
	// A simple rule to block a common ad server pattern
	"||doubleclick.net^",
	// A rule to block a specific image
	"/ad.png",
}

// RuleSource supplies rule text. It is the only thing that has to change when
// rules move from a static list to a downloaded one.
type RuleSource interface {
	Load(ctx context.Context) ([]string, error)
}

// StaticSource returns a fixed list of rules.
type StaticSource []string

func (s StaticSource) Load(context.Context) ([]string, error) {
	out := make([]string, len(s))
	copy(out, s)
	return out, nil
}

// FileSource reads one rule per line from a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Load(context.Context) ([]string, error) {
	file, err := os.Open(strings.TrimPrefix(s.Path, "file://"))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return readLines(file)
}

// HTTPSource downloads a rule list once.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource creates an HTTPSource with the default download timeout.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: defaultDownloadTimeout},
	}
}

func (s *HTTPSource) Load(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	// Use a limited reader to prevent downloading huge files
	limitedReader := &io.LimitedReader{R: resp.Body, N: maxRuleListBytes + 1}
	lines, err := readLines(limitedReader)
	if err != nil {
		return nil, err
	}
	if limitedReader.N == 0 {
		return nil, fmt.Errorf("rule list %s exceeds %d bytes", s.URL, maxRuleListBytes)
	}
	return lines, nil
}

// MultiSource concatenates several sources in order. Sources are loaded
// concurrently; any failure fails the whole load.
type MultiSource []RuleSource

func (m MultiSource) Load(ctx context.Context) ([]string, error) {
	results := make([][]string, len(m))

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range m {
		g.Go(func() error {
			rules, err := src.Load(ctx)
			if err != nil {
				return fmt.Errorf("rule source %d: %w", i, err)
			}
			results[i] = rules
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []string
	for _, rules := range results {
		all = append(all, rules...)
	}
	return all, nil
}

// LoadRuleSet loads rules from src and compiles them with the given engine.
func LoadRuleSet(ctx context.Context, src RuleSource, kind EngineKind) (*RuleSet, error) {
	startTime := time.Now()

	rules, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	rs, err := Build(kind, rules)
	if err != nil {
		return nil, err
	}

	logger.Infof("[AdBlock] Compiled %d rules with %s engine in %v", rs.Count(), rs.Kind(), time.Since(startTime))
	return rs, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
