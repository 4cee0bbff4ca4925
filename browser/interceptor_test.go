package browser

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zillafilter/pipeline"
)

func TestToFulfillArgsRelay(t *testing.T) {
	resp := &pipeline.Response{
		StatusCode: 200,
		Headers: []pipeline.Header{
			{Name: "Content-Type", Value: "image/png"},
			{Name: "Set-Cookie", Value: "a=1"},
			{Name: "Set-Cookie", Value: "b=2"},
		},
		Body: []byte{0x89, 'P', 'N', 'G'},
	}

	args := toFulfillArgs("interception-1", resp)
	assert.Equal(t, fetch.RequestID("interception-1"), args.RequestID)
	assert.Equal(t, 200, args.ResponseCode)
	assert.Equal(t, []fetch.HeaderEntry{
		{Name: "Content-Type", Value: "image/png"},
		{Name: "Set-Cookie", Value: "a=1"},
		{Name: "Set-Cookie", Value: "b=2"},
	}, args.ResponseHeaders)
	assert.Equal(t, resp.Body, args.Body)
}

func TestToFulfillArgsBlocked(t *testing.T) {
	args := toFulfillArgs("interception-2", &pipeline.Response{StatusCode: 204})
	assert.Equal(t, 204, args.ResponseCode)
	assert.Empty(t, args.ResponseHeaders)
	assert.Empty(t, args.Body)
}

func TestSelectTarget(t *testing.T) {
	targets := []*devtool.Target{
		{ID: "1", Type: "page", URL: "https://first.test/", WebSocketDebuggerURL: "ws://x/1"},
		{ID: "2", Type: "page", URL: "https://second.test/", WebSocketDebuggerURL: "ws://x/2"},
		{ID: "3", Type: "page", URL: "chrome://newtab/", WebSocketDebuggerURL: "ws://x/3"},
		{ID: "4", Type: "service_worker", URL: "https://second.test/sw.js", WebSocketDebuggerURL: "ws://x/4"},
	}
	sel := selectTarget(targets)
	require.NotNil(t, sel)
	assert.Equal(t, "2", string(sel.ID))

	sel = selectTarget([]*devtool.Target{
		{ID: "9", Type: "page", URL: "devtools://devtools/inspector.html", WebSocketDebuggerURL: "ws://x/9"},
	})
	require.NotNil(t, sel)
	assert.Equal(t, "9", string(sel.ID))

	assert.Nil(t, selectTarget(nil))
}

func TestIsUserPageURL(t *testing.T) {
	assert.True(t, isUserPageURL("https://adblock-tester.com/"))
	assert.True(t, isUserPageURL("about:blank"))
	assert.False(t, isUserPageURL("chrome://settings"))
	assert.False(t, isUserPageURL("devtools://devtools/bundled/inspector.html"))
}

func TestRunRequiresAttach(t *testing.T) {
	i := New("http://127.0.0.1:9222", "", nil)
	assert.Equal(t, "*", i.urlPattern)
	assert.Empty(t, i.Target())
	assert.Error(t, i.Run(context.Background()))
	assert.NoError(t, i.Close())
}

type stubHandler struct {
	resp *pipeline.Response
	got  []pipeline.Request
}

func (h *stubHandler) Handle(_ context.Context, req pipeline.Request) *pipeline.Response {
	h.got = append(h.got, req)
	return h.resp
}

type recordingReplier struct {
	mu         sync.Mutex
	fulfillErr error
	fulfilled  []*fetch.FulfillRequestArgs
	failed     []*fetch.FailRequestArgs
}

func (r *recordingReplier) FulfillRequest(_ context.Context, args *fetch.FulfillRequestArgs) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fulfilled = append(r.fulfilled, args)
	return r.fulfillErr
}

func (r *recordingReplier) FailRequest(_ context.Context, args *fetch.FailRequestArgs) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, args)
	return nil
}

func pausedEvent(t *testing.T, id, rawURL string) *fetch.RequestPausedReply {
	t.Helper()
	raw := `{"requestId":"` + id + `","request":{"url":"` + rawURL + `","method":"GET"}}`
	var ev fetch.RequestPausedReply
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return &ev
}

func TestHandleFulfillsOnce(t *testing.T) {
	h := &stubHandler{resp: &pipeline.Response{StatusCode: 200}}
	r := &recordingReplier{}
	i := New("http://127.0.0.1:9222", "", h)

	i.handle(context.Background(), r, pausedEvent(t, "interception-7", "https://ads.doubleclick.net/x"))

	require.Len(t, h.got, 1)
	assert.Equal(t, pipeline.Request{ID: "interception-7", URL: "https://ads.doubleclick.net/x"}, h.got[0])
	require.Len(t, r.fulfilled, 1)
	assert.Equal(t, fetch.RequestID("interception-7"), r.fulfilled[0].RequestID)
	assert.Equal(t, 200, r.fulfilled[0].ResponseCode)
	assert.Empty(t, r.failed)
}

func TestHandleFallsBackToFail(t *testing.T) {
	h := &stubHandler{resp: &pipeline.Response{StatusCode: 500}}
	r := &recordingReplier{fulfillErr: errors.New("connection reset")}
	i := New("http://127.0.0.1:9222", "", h)

	i.handle(context.Background(), r, pausedEvent(t, "interception-8", "https://cdn.test/app.js"))

	assert.Len(t, r.fulfilled, 1)
	require.Len(t, r.failed, 1)
	assert.Equal(t, fetch.RequestID("interception-8"), r.failed[0].RequestID)
}

// TestHandleRepliesAfterCancel 取消后仍需回复浏览器，否则页面挂起
func TestHandleRepliesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &recordingReplier{}
	i := New("http://127.0.0.1:9222", "", &stubHandler{resp: &pipeline.Response{StatusCode: 500}})
	i.handle(ctx, r, pausedEvent(t, "interception-9", "https://cdn.test/site.css"))

	assert.Len(t, r.fulfilled, 1)
	assert.Empty(t, r.failed)
}

func TestCloseWaitsForEventLoop(t *testing.T) {
	i := New("http://127.0.0.1:9222", "", nil)
	loopDone := make(chan struct{})
	var cancelled bool
	i.cancel = func() { cancelled = true }
	i.done = loopDone

	closed := make(chan struct{})
	go func() {
		assert.NoError(t, i.Close())
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned before the event loop exited")
	case <-time.After(50 * time.Millisecond):
	}

	close(loopDone)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the event loop exited")
	}
	assert.True(t, cancelled)
}
