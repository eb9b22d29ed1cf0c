package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mariozechner/coderunner/pkg/capture"
	"github.com/mariozechner/coderunner/pkg/capture/capturetest"
	"github.com/mariozechner/coderunner/pkg/clipboard"
	"github.com/mariozechner/coderunner/pkg/page"
	"github.com/mariozechner/coderunner/pkg/runner"
	"github.com/mariozechner/coderunner/pkg/sandbox"
)

const testDoc = "Say hi.\n\n```python\nprint hi\n```\n\n```python\nraise ValueError: bad\n```\n"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	rt := capturetest.New()
	mgr := sandbox.NewManager(func(ctx context.Context) (sandbox.Runtime, error) {
		return rt, nil
	})
	r := runner.New(mgr, capture.New(capturetest.Dialect{}), runner.Options{})
	s := New(page.Parse([]byte(testDoc)), r)
	s.flash = 10 * time.Millisecond

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/run"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readUntil reads frames until stop returns true.
func readUntil(t *testing.T, ws *websocket.Conn, stop func(Frame) bool) []Frame {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frames []Frame
	for {
		var f Frame
		if err := ws.ReadJSON(&f); err != nil {
			t.Fatalf("ReadJSON after %+v: %v", frames, err)
		}
		frames = append(frames, f)
		if stop(f) {
			return frames
		}
	}
}

func idleRun(f Frame) bool {
	return f.Type == FrameControl && f.Control == "run" && f.State == "idle"
}

func resultOf(t *testing.T, frames []Frame) Frame {
	t.Helper()
	for _, f := range frames {
		if f.Type == FrameResult {
			return f
		}
	}
	t.Fatalf("no result frame in %+v", frames)
	return Frame{}
}

func TestListBlocks(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/blocks")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var doc page.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Blocks) != 2 || doc.Blocks[0].Intro != "Say hi." {
		t.Errorf("unexpected document %+v", doc)
	}
}

func TestGetBlock(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		path string
		want int
	}{
		{"/api/blocks/1", http.StatusOK},
		{"/api/blocks/7", http.StatusNotFound},
		{"/api/blocks/x", http.StatusBadRequest},
		{"/healthz", http.StatusOK},
		{"/api/nope", http.StatusNotFound},
		{"/", http.StatusOK},
	}
	for _, tt := range tests {
		resp, err := http.Get(ts.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestRunBlock(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)

	block := 0
	if err := ws.WriteJSON(Command{Type: "run", Block: &block}); err != nil {
		t.Fatal(err)
	}
	frames := readUntil(t, ws, idleRun)

	if f := frames[0]; f.Type != FrameControl || f.State != "running" || f.Label != "Running" {
		t.Errorf("first frame = %+v, want running control", f)
	}
	busy := 0
	for _, f := range frames {
		if f.Type == FrameControl && f.State == "running" {
			busy++
		}
	}
	if busy != 1 {
		t.Errorf("got %d running control frames, want 1", busy)
	}
	res := resultOf(t, frames)
	if res.Text != "hi\n" || res.IsError || res.Block != 0 || res.RequestID == "" {
		t.Errorf("result = %+v", res)
	}
	if last := frames[len(frames)-1]; last.Label != "Run" {
		t.Errorf("last frame = %+v", last)
	}
}

func TestRunBlock_Error(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)

	block := 1
	ws.WriteJSON(Command{Type: "run", Block: &block})
	res := resultOf(t, readUntil(t, ws, idleRun))
	if res.Text != runner.ErrorPrefix+"ValueError: bad" || !res.IsError {
		t.Errorf("result = %+v", res)
	}
}

func TestRunAdHoc(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)

	ws.WriteJSON(Command{Type: "run", Code: "python --version"})
	res := resultOf(t, readUntil(t, ws, idleRun))
	if res.Block != adHocBlock || !strings.HasPrefix(res.Text, "Python 3.11.2") {
		t.Errorf("result = %+v", res)
	}
}

func TestRunSocket_BadCommands(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)

	block := 9
	ws.WriteJSON(Command{Type: "run", Block: &block})
	frames := readUntil(t, ws, func(f Frame) bool { return f.Type == FrameError })
	if frames[0].Block != 9 {
		t.Errorf("error frame = %+v", frames[0])
	}

	ws.WriteJSON(Command{Type: "dance"})
	frames = readUntil(t, ws, func(f Frame) bool { return f.Type == FrameError })
	if !strings.Contains(frames[0].Text, "dance") {
		t.Errorf("error frame = %+v", frames[0])
	}
}

func TestCopyBlock(t *testing.T) {
	tests := []struct {
		outcome clipboard.Outcome
		label   string
	}{
		{clipboard.Succeeded, "Copied!"},
		{clipboard.Failed, "Copy Failed"},
	}
	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			ts := newTestServer(t)
			ws := dial(t, ts)

			block := 0
			ws.WriteJSON(Command{Type: "copy", Block: &block, Outcome: tt.outcome.String()})
			frames := readUntil(t, ws, func(f Frame) bool {
				return f.Control == "copy" && f.State == "idle"
			})
			if frames[0].Label != tt.label {
				t.Errorf("first copy frame = %+v, want label %q", frames[0], tt.label)
			}
			if last := frames[len(frames)-1]; last.Label != "Copy" {
				t.Errorf("last copy frame = %+v", last)
			}
		})
	}
}

func TestCopyBlock_NoContentLeavesControl(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)

	block := 0
	ws.WriteJSON(Command{Type: "copy", Block: &block, Outcome: clipboard.NoContent.String()})
	ws.WriteJSON(Command{Type: "dance"})
	frames := readUntil(t, ws, func(f Frame) bool { return f.Type == FrameError })
	if len(frames) != 1 {
		t.Errorf("no-content copy sent frames %+v", frames[:len(frames)-1])
	}
}

func TestCopyBlock_RequiresOutcome(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)

	block := 0
	ws.WriteJSON(Command{Type: "copy", Block: &block})
	frames := readUntil(t, ws, func(f Frame) bool { return f.Type == FrameError })
	if !strings.Contains(frames[0].Text, "unknown copy outcome") {
		t.Errorf("error frame = %+v", frames[0])
	}
}
