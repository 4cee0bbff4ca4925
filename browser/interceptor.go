// Package browser connects the interception pipeline to a Chromium instance
// through the DevTools protocol Fetch domain.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/rpcc"

	"zillafilter/logger"
	"zillafilter/pipeline"
)

// ErrNoTarget is returned by Attach when DevTools lists no usable page.
const ErrNoTarget errors.Error = "no devtools page target"

// replyTimeout bounds a single fulfill or fail call back to the browser.
const replyTimeout = 5 * time.Second

// Handler answers one paused request. *pipeline.Pipeline implements it.
type Handler interface {
	Handle(ctx context.Context, req pipeline.Request) *pipeline.Response
}

// replier is the part of the Fetch domain used to answer a paused request.
// cdp.Fetch satisfies it.
type replier interface {
	FulfillRequest(ctx context.Context, args *fetch.FulfillRequestArgs) error
	FailRequest(ctx context.Context, args *fetch.FailRequestArgs) error
}

// Interceptor pauses every matching request of one page target at the request
// stage and answers it with exactly one Fetch.fulfillRequest built from the
// Handler's response.
type Interceptor struct {
	devtoolsURL string
	urlPattern  string
	handler     Handler

	mu     sync.Mutex
	conn   *rpcc.Conn
	client *cdp.Client
	target string
	cancel context.CancelFunc
	// done is closed when Run returns; no handler starts after that.
	done chan struct{}

	inflight sync.WaitGroup
}

// New creates an Interceptor. An empty urlPattern pauses every request.
func New(devtoolsURL, urlPattern string, h Handler) *Interceptor {
	if urlPattern == "" {
		urlPattern = "*"
	}
	return &Interceptor{
		devtoolsURL: devtoolsURL,
		urlPattern:  urlPattern,
		handler:     h,
	}
}

// Attach connects to the most recent user page listed by DevTools.
func (i *Interceptor) Attach(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	targets, err := devtool.New(i.devtoolsURL).List(ctx)
	if err != nil {
		return fmt.Errorf("list devtools targets: %w", err)
	}
	sel := selectTarget(targets)
	if sel == nil {
		return ErrNoTarget
	}

	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", sel.WebSocketDebuggerURL, err)
	}
	i.conn = conn
	i.client = cdp.NewClient(conn)
	i.target = string(sel.ID)

	logger.With("target", string(sel.ID), "url", sel.URL).Infof("[Browser] Attached to DevTools target")
	return nil
}

// Run enables request interception and serves paused requests until ctx is
// done or the event stream breaks. Each event is handled in its own
// goroutine so slow upstreams never delay other requests.
func (i *Interceptor) Run(ctx context.Context) error {
	i.mu.Lock()
	client := i.client
	if client == nil {
		i.mu.Unlock()
		return fmt.Errorf("interceptor is not attached")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	i.cancel = cancel
	i.done = done
	i.mu.Unlock()
	defer close(done)
	defer cancel()

	pattern := i.urlPattern
	err := client.Fetch.Enable(ctx, &fetch.EnableArgs{
		Patterns: []fetch.RequestPattern{
			{URLPattern: &pattern, RequestStage: fetch.RequestStageRequest},
		},
	})
	if err != nil {
		return fmt.Errorf("enable fetch domain: %w", err)
	}

	stream, err := client.Fetch.RequestPaused(ctx)
	if err != nil {
		return fmt.Errorf("subscribe requestPaused: %w", err)
	}
	defer stream.Close()

	logger.Infof("[Browser] Intercepting requests matching %q", pattern)
	for {
		ev, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive requestPaused: %w", err)
		}

		i.inflight.Add(1)
		go func() {
			defer i.inflight.Done()
			i.handle(ctx, client.Fetch, ev)
		}()
	}
}

// Close cancels in-flight fetches, waits for the event loop and every reply,
// then closes the DevTools connection.
func (i *Interceptor) Close() error {
	i.mu.Lock()
	if i.cancel != nil {
		i.cancel()
	}
	done := i.done
	i.mu.Unlock()

	if done != nil {
		<-done
	}
	i.inflight.Wait()

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.conn == nil {
		return nil
	}
	err := i.conn.Close()
	i.conn, i.client = nil, nil
	return err
}

// handle answers ev with exactly one fulfillRequest, or with failRequest when
// fulfilling fails.
func (i *Interceptor) handle(ctx context.Context, r replier, ev *fetch.RequestPausedReply) {
	log := logger.With("id", string(ev.RequestID))

	resp := i.handler.Handle(ctx, pipeline.Request{
		ID:  string(ev.RequestID),
		URL: ev.Request.URL,
	})

	// The reply must still reach the browser after the run context is
	// cancelled, otherwise the page hangs on a paused request.
	replyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()

	err := r.FulfillRequest(replyCtx, toFulfillArgs(ev.RequestID, resp))
	if err == nil {
		return
	}
	log.Warnf("[Browser] fulfillRequest failed for %s: %v", ev.Request.URL, err)

	failArgs := &fetch.FailRequestArgs{
		RequestID:   ev.RequestID,
		ErrorReason: network.ErrorReasonFailed,
	}
	if err := r.FailRequest(replyCtx, failArgs); err != nil {
		log.Errorf("[Browser] failRequest failed for %s: %v", ev.Request.URL, err)
	}
}

// toFulfillArgs converts a pipeline response into fulfillRequest arguments.
func toFulfillArgs(id fetch.RequestID, resp *pipeline.Response) *fetch.FulfillRequestArgs {
	args := &fetch.FulfillRequestArgs{
		RequestID:    id,
		ResponseCode: resp.StatusCode,
	}
	if len(resp.Headers) > 0 {
		args.ResponseHeaders = make([]fetch.HeaderEntry, 0, len(resp.Headers))
		for _, h := range resp.Headers {
			args.ResponseHeaders = append(args.ResponseHeaders, fetch.HeaderEntry{Name: h.Name, Value: h.Value})
		}
	}
	if len(resp.Body) > 0 {
		args.Body = resp.Body
	}
	return args
}

// selectTarget picks the last listed user page, falling back to the first
// target of any kind.
func selectTarget(targets []*devtool.Target) *devtool.Target {
	for i := len(targets) - 1; i >= 0; i-- {
		t := targets[i]
		if t == nil || t.Type != "page" || !isUserPageURL(t.URL) {
			continue
		}
		return t
	}
	for _, t := range targets {
		if t != nil && t.WebSocketDebuggerURL != "" {
			return t
		}
	}
	return nil
}

func isUserPageURL(u string) bool {
	for _, prefix := range []string{"devtools://", "chrome://", "chrome-extension://", "edge://"} {
		if strings.HasPrefix(u, prefix) {
			return false
		}
	}
	return true
}

// Target returns the ID of the attached DevTools target.
func (i *Interceptor) Target() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.target
}
