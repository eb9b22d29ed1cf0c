package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/mariozechner/coderunner/pkg/clipboard"
	"github.com/mariozechner/coderunner/pkg/page"
	"github.com/mariozechner/coderunner/pkg/runner"
	"github.com/mariozechner/coderunner/pkg/sandbox"
	"github.com/mariozechner/coderunner/pkg/ui"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// refreshMsg asks for a redraw after state changed off the event loop.
type refreshMsg struct{}

type runDoneMsg struct {
	block int
	res   runner.Result
}

type copyDoneMsg struct {
	block   int
	outcome clipboard.Outcome
}

type flashExpiredMsg struct {
	block int
	tok   ui.Token
}

// sender forwards messages to the program once it exists.
type sender struct {
	mu sync.Mutex
	p  *tea.Program
}

func (s *sender) set(p *tea.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p
}

// Send must not be called from Update.
func (s *sender) Send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

type copier interface {
	Copy(ctx context.Context, text string) clipboard.Outcome
}

type blockView struct {
	block page.Block
	run   *ui.Button
	copy  *ui.Button
	out   *ui.Output

	intro string
	code  string
}

type model struct {
	ctx     context.Context
	runner  *runner.Runner
	sandbox *sandbox.Manager
	copier  copier
	send    func(tea.Msg)

	blocks  []*blockView
	trailer string
	// offsets are the viewport lines where each block starts.
	offsets []int
	cursor  int
	width   int
	height  int

	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	rawTrail string
}

func newModel(ctx context.Context, doc *page.Document, r *runner.Runner, mgr *sandbox.Manager, c copier, send func(tea.Msg)) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := model{
		ctx:      ctx,
		runner:   r,
		sandbox:  mgr,
		copier:   c,
		send:     send,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		rawTrail: doc.Trailer,
	}
	for _, b := range doc.Blocks {
		m.blocks = append(m.blocks, &blockView{
			block: b,
			run:   ui.NewRunButton(),
			copy:  ui.NewCopyButton(),
			out:   &ui.Output{},
		})
	}
	m.render(80)
	return m
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 4
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}
		m.render(msg.Width)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				m.scrollToCursor()
			}
		case "down", "j":
			if m.cursor < len(m.blocks)-1 {
				m.cursor++
				m.scrollToCursor()
			}
		case "enter", "r":
			if cmd := m.runSelected(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		case "c":
			if cmd := m.copySelected(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case runDoneMsg:
		slog.Debug("Run finished", "block", msg.block, "isError", msg.res.IsError)

	case copyDoneMsg:
		bv := m.blocks[msg.block]
		if tok, ok := bv.copy.Report(msg.outcome); ok {
			cmds = append(cmds, tea.Tick(ui.FlashDuration, func(time.Time) tea.Msg {
				return flashExpiredMsg{block: msg.block, tok: tok}
			}))
		}

	case flashExpiredMsg:
		m.blocks[msg.block].copy.Expire(msg.tok)

	case refreshMsg:
	}

	m.refresh()
	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	header := titleStyle.Render("coderunner") + " " + footerStyle.Render("interpreter: "+m.sandbox.State().String())
	footer := footerStyle.Render("↑/↓ select • enter run • c copy • q quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), footer)
}

func (m *model) runSelected() tea.Cmd {
	if len(m.blocks) == 0 {
		return nil
	}
	bv := m.blocks[m.cursor]
	// A second press while the block is running is ignored.
	if !bv.run.TryBegin() {
		return nil
	}

	req := runner.NewRequest(bv.block.Source, &teaSink{out: bv.out, send: m.send}, &teaControl{btn: bv.run, send: m.send})
	r, ctx, index := m.runner, m.ctx, bv.block.Index
	return func() tea.Msg {
		return runDoneMsg{block: index, res: r.Run(ctx, req)}
	}
}

func (m *model) copySelected() tea.Cmd {
	if len(m.blocks) == 0 {
		return nil
	}
	bv := m.blocks[m.cursor]
	c, ctx, index, source := m.copier, m.ctx, bv.block.Index, bv.block.Source
	return func() tea.Msg {
		return copyDoneMsg{block: index, outcome: c.Copy(ctx, source)}
	}
}

// render re-renders the markdown parts for width.
func (m *model) render(width int) {
	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		slog.Error("Failed to create markdown renderer", "error", err)
	}
	m.renderer = r

	for _, bv := range m.blocks {
		bv.intro = m.markdown(bv.block.Intro)
		fence := "```\n" + bv.block.Source + "```\n"
		bv.code = m.markdown(fence)
	}
	m.trailer = m.markdown(m.rawTrail)
	m.refresh()
}

func (m *model) markdown(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	if m.renderer == nil {
		return src
	}
	out, err := m.renderer.Render(src)
	if err != nil {
		return src
	}
	return strings.TrimRight(out, "\n")
}

// refresh rebuilds the viewport content from the current control and
// output state.
func (m *model) refresh() {
	var sb strings.Builder
	lines := 0
	write := func(s string) {
		if s == "" {
			return
		}
		sb.WriteString(s)
		sb.WriteString("\n")
		lines += strings.Count(s, "\n") + 1
	}

	m.offsets = m.offsets[:0]
	for i, bv := range m.blocks {
		write(bv.intro)
		m.offsets = append(m.offsets, lines)

		marker := "  "
		if i == m.cursor {
			marker = cursorStyle.Render("▶ ")
		}
		controls := marker + bv.run.Render(m.spinner.View()) + " " + bv.copy.Render("") +
			footerStyle.Render(fmt.Sprintf("  block %d", bv.block.Index+1))
		write(bv.code)
		write(controls)
		write(bv.out.View(m.width))
		sb.WriteString("\n")
		lines++
	}
	write(m.trailer)

	m.viewport.SetContent(sb.String())
}

func (m *model) scrollToCursor() {
	if m.cursor < len(m.offsets) {
		m.viewport.SetYOffset(m.offsets[m.cursor])
	}
}

// teaControl drives a run button from the runner goroutine.
type teaControl struct {
	btn  *ui.Button
	send func(tea.Msg)
}

func (c *teaControl) Begin() {
	c.btn.Begin()
	c.send(refreshMsg{})
}

func (c *teaControl) Reset() {
	c.btn.Reset()
	c.send(refreshMsg{})
}

// teaSink writes runner output into an output region.
type teaSink struct {
	out  *ui.Output
	send func(tea.Msg)
}

func (s *teaSink) Reset() {
	s.out.Reset()
	s.send(refreshMsg{})
}

func (s *teaSink) Status(text string) {
	s.out.Status(text)
	s.send(refreshMsg{})
}

func (s *teaSink) Render(res runner.Result) {
	s.out.Render(res)
	s.send(refreshMsg{})
}
