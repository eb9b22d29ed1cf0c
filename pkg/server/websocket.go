package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mariozechner/coderunner/pkg/clipboard"
	"github.com/mariozechner/coderunner/pkg/runner"
	"github.com/mariozechner/coderunner/pkg/ui"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Command is a client message on the run socket. Type is "run" (the
// default) or "copy". Block selects a code block; Code runs ad-hoc source
// instead when Block is nil. A copy command carries the Outcome of the
// browser's clipboard write.
type Command struct {
	Type    string `json:"type"`
	Block   *int   `json:"block,omitempty"`
	Code    string `json:"code,omitempty"`
	Outcome string `json:"outcome,omitempty"`
}

// Frame is a server message on the run socket.
type Frame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Block     int    `json:"block"`
	Control   string `json:"control,omitempty"`
	State     string `json:"state,omitempty"`
	Label     string `json:"label,omitempty"`
	Text      string `json:"text,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
	Visible   bool   `json:"visible,omitempty"`
}

const (
	FrameControl = "control"
	FrameReset   = "reset"
	FrameStatus  = "status"
	FrameResult  = "result"
	FrameError   = "error"

	// adHocBlock identifies runs of code sent without a block index.
	adHocBlock = -1
)

// conn is one websocket client. Controls are per client.
type conn struct {
	ws     *websocket.Conn
	out    chan Frame
	done   chan struct{}
	gone   chan struct{}
	mu     sync.Mutex
	runs   map[int]*ui.Button
	copies map[int]*ui.Button
}

func (s *Server) handleRunWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	c := &conn{
		ws:     ws,
		out:    make(chan Frame, 64),
		done:   make(chan struct{}),
		gone:   make(chan struct{}),
		runs:   make(map[int]*ui.Button),
		copies: make(map[int]*ui.Button),
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)

	// Writer loop. gorilla/websocket allows a single concurrent writer.
	go func() {
		defer wg.Done()
		defer close(c.gone)
		defer ws.Close()
		for {
			select {
			case <-c.done:
				return
			case f := <-c.out:
				if err := ws.WriteJSON(f); err != nil {
					slog.Error("WebSocket write error", "error", err)
					return
				}
			}
		}
	}()

	var runs sync.WaitGroup
	for {
		var cmd Command
		if err := ws.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}

		switch cmd.Type {
		case "run", "":
			s.handleRun(ctx, c, cmd, &runs)
		case "copy":
			s.handleCopy(c, cmd)
		default:
			c.send(Frame{Type: FrameError, Block: adHocBlock, Text: "unknown command " + cmd.Type})
		}
	}

	cancel()
	runs.Wait()
	close(c.done)
	wg.Wait()
}

func (s *Server) handleRun(ctx context.Context, c *conn, cmd Command, runs *sync.WaitGroup) {
	block, source := adHocBlock, cmd.Code
	if cmd.Block != nil {
		b, err := s.doc.Block(*cmd.Block)
		if err != nil {
			c.send(Frame{Type: FrameError, Block: *cmd.Block, Text: err.Error()})
			return
		}
		block, source = b.Index, b.Source
	}

	btn := c.button(c.runs, block, "run", ui.NewRunButton)
	// A second press while the block is running is ignored. The runner's
	// own Begin is then a no-op.
	if !btn.TryBegin() {
		slog.Debug("Ignoring run while busy", "block", block)
		return
	}

	snk := &sink{conn: c, block: block}
	req := runner.NewRequest(source, snk, btn)
	snk.requestID = req.ID

	runs.Add(1)
	go func() {
		defer runs.Done()
		s.runner.Run(ctx, req)
	}()
}

func (s *Server) handleCopy(c *conn, cmd Command) {
	if cmd.Block == nil {
		c.send(Frame{Type: FrameError, Block: adHocBlock, Text: "copy requires a block"})
		return
	}
	b, err := s.doc.Block(*cmd.Block)
	if err != nil {
		c.send(Frame{Type: FrameError, Block: *cmd.Block, Text: err.Error()})
		return
	}
	outcome, err := clipboard.ParseOutcome(cmd.Outcome)
	if err != nil {
		c.send(Frame{Type: FrameError, Block: b.Index, Text: err.Error()})
		return
	}

	btn := c.button(c.copies, b.Index, "copy", ui.NewCopyButton)
	if tok, ok := btn.Report(outcome); ok {
		btn.ExpireAfter(tok, s.flash)
	} else {
		slog.Warn("No text to copy", "block", b.Index)
	}
}

// button returns the control for block, creating it on first use.
func (c *conn) button(m map[int]*ui.Button, block int, kind string, mk func() *ui.Button) *ui.Button {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := m[block]; ok {
		return b
	}
	b := mk()
	b.OnChange(func(state ui.ControlState, label string) {
		c.send(Frame{Type: FrameControl, Block: block, Control: kind, State: state.String(), Label: label})
	})
	m[block] = b
	return b
}

func (c *conn) send(f Frame) {
	select {
	case c.out <- f:
	case <-c.gone:
	}
}

// sink streams run output to the client.
type sink struct {
	conn      *conn
	block     int
	requestID string
}

func (s *sink) Reset() {
	s.conn.send(Frame{Type: FrameReset, RequestID: s.requestID, Block: s.block, Visible: true})
}

func (s *sink) Status(text string) {
	s.conn.send(Frame{Type: FrameStatus, RequestID: s.requestID, Block: s.block, Text: text, Visible: true})
}

func (s *sink) Render(res runner.Result) {
	s.conn.send(Frame{Type: FrameResult, RequestID: s.requestID, Block: s.block, Text: res.Text, IsError: res.IsError, Visible: true})
}
