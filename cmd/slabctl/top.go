package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	overlay "github.com/rmhubbert/bubbletea-overlay"
	"github.com/spf13/cobra"

	"github.com/joshuapare/slabkit/slab"
)

var topRefresh = 250 * time.Millisecond

func init() {
	cmd := newTopCmd()
	f := cmd.Flags()
	f.IntVarP(&stressOpts.threads, "threads", "t", stressOpts.threads, "Worker goroutines, each with its own thread slot")
	f.IntVarP(&stressOpts.ops, "ops", "n", stressOpts.ops, "Allocations per worker")
	f.IntVar(&stressOpts.maxSize, "max-size", stressOpts.maxSize, "Largest request size in bytes")
	f.IntVar(&stressOpts.live, "live", stressOpts.live, "Allocations each worker keeps alive before freeing")
	f.Float64Var(&stressOpts.remoteRatio, "remote-ratio", stressOpts.remoteRatio, "Fraction of allocations freed by another worker")
	f.Uint64Var(&stressOpts.seed, "seed", stressOpts.seed, "Workload seed")
	f.DurationVar(&topRefresh, "refresh", topRefresh, "Screen refresh interval")
	rootCmd.AddCommand(cmd)
}

func newTopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "top",
		Short: "Watch allocator counters live while a stress workload runs",
		Long: `The top command runs the same workload as stress and renders the allocator
counters in a terminal view until the workload finishes or you quit.

Keys:
  ?   toggle help
  c   copy the current counters to the clipboard as JSON
  q   quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTop(cmd.Context(), stressOpts)
		},
	}
}

func runTop(ctx context.Context, o stressOptions) error {
	cfg := slab.DefaultConfig()
	cfg.MaxThreads = o.threads
	a, err := slab.New(&cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- stress(ctx, a, o) }()

	m := newTopModel(a, o.threads*o.ops, start, done)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	cancel()
	if err != nil {
		return err
	}
	if tm, ok := final.(topModel); ok && tm.err != nil {
		return tm.err
	}
	return nil
}

// topKeys are the bindings the live view responds to.
type topKeys struct {
	Help key.Binding
	Copy key.Binding
	Quit key.Binding
}

func defaultTopKeys() topKeys {
	return topKeys{
		Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Copy: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy JSON")),
		Quit: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

type (
	tickMsg   time.Time
	doneMsg   struct{ err error }
	copiedMsg struct{ err error }
)

// topModel is the bubbletea model behind slabctl top.
type topModel struct {
	src      interface{ Stats() slab.Stats }
	keys     topKeys
	help     viewport.Model
	total    int
	start    time.Time
	elapsed  time.Duration
	done     <-chan error
	stats    slab.Stats
	finished bool
	showHelp bool
	status   string
	err      error
	width    int
}

func newTopModel(src interface{ Stats() slab.Stats }, total int, start time.Time, done <-chan error) topModel {
	keys := defaultTopKeys()
	help := viewport.New(36, 5)
	help.SetContent(strings.Join([]string{
		keyLine(keys.Help),
		keyLine(keys.Copy),
		keyLine(keys.Quit),
	}, "\n"))
	return topModel{
		src:   src,
		keys:  keys,
		help:  help,
		total: total,
		start: start,
		done:  done,
		stats: src.Stats(),
	}
}

func keyLine(b key.Binding) string {
	h := b.Help()
	return keyStyle.Render(fmt.Sprintf("%-4s", h.Key)) + " " + h.Desc
}

func (m topModel) Init() tea.Cmd {
	return tea.Batch(tick(), waitDone(m.done))
}

func tick() tea.Cmd {
	return tea.Tick(topRefresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitDone(done <-chan error) tea.Cmd {
	if done == nil {
		return nil
	}
	return func() tea.Msg { return doneMsg{err: <-done} }
}

func (m topModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.stats = m.src.Stats()
		if m.finished {
			return m, nil
		}
		m.elapsed = time.Since(m.start)
		return m, tick()

	case doneMsg:
		m.stats = m.src.Stats()
		m.elapsed = time.Since(m.start)
		m.finished = true
		m.err = msg.err
		if msg.err != nil {
			m.status = "workload failed: " + msg.err.Error()
		} else {
			m.status = "workload finished, chains verified"
		}
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
		} else {
			m.status = "counters copied to clipboard"
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.showHelp && msg.String() == "esc" {
				m.showHelp = false
				return m, nil
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, m.keys.Copy):
			return m, copyStats(m.stats)
		}
	}
	return m, nil
}

func copyStats(s slab.Stats) tea.Cmd {
	return func() tea.Msg {
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return copiedMsg{err: err}
		}
		return copiedMsg{err: clipboard.WriteAll(string(b))}
	}
}

func (m topModel) View() string {
	if m.showHelp {
		box := helpBoxModel{content: helpBoxStyle.Render(m.help.View())}
		return overlay.New(box, topBackground{m}, overlay.Center, overlay.Center, 0, 0).View()
	}
	return m.render()
}

func (m topModel) render() string {
	s := m.stats
	title := titleStyle.Render("slabctl top")
	progress := printer.Sprintf("%d / %d allocations, %s", s.Allocs, m.total, m.elapsed.Round(time.Millisecond))

	rows := [][2]string{
		{"allocs", printer.Sprintf("%d", s.Allocs)},
		{"local frees", printer.Sprintf("%d", s.LocalFrees)},
		{"remote frees", printer.Sprintf("%d", s.RemoteFrees)},
		{"merges", printer.Sprintf("%d (%d slots)", s.Merges, s.MergedSlots)},
		{"superpages", printer.Sprintf("%d reserved, %d live", s.Superpages, s.LiveSuperpages())},
		{"unmaps", printer.Sprintf("%d (%d remote)", s.Unmaps, s.RemoteUnmaps)},
		{"conflicts", printer.Sprintf("%d", s.Conflicts)},
		{"huge", printer.Sprintf("%d allocated, %d freed", s.HugeAllocs, s.HugeFrees)},
		{"pool", printer.Sprintf("%d blocks, %d buffers attached", s.PoolBlocks, s.PoolBuffersUsed)},
		{"threads", printer.Sprintf("%d of %d attached, %d adoptions", s.AttachedThreads, s.MaxThreads, s.Adoptions)},
	}
	var body strings.Builder
	for i, r := range rows {
		if i > 0 {
			body.WriteByte('\n')
		}
		body.WriteString(labelStyle.Render(fmt.Sprintf("%-14s", r[0])))
		body.WriteString(valueStyle.Render(r[1]))
	}

	status := m.status
	if status == "" {
		status = "running"
	}
	footer := mutedStyle.Render(strings.Join([]string{
		keyLine(m.keys.Help), keyLine(m.keys.Copy), keyLine(m.keys.Quit),
	}, " │ "))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		mutedStyle.Render(progress),
		paneStyle.Render(body.String()),
		statusStyle.Render(status),
		footer,
	)
}

// topBackground renders the counters beneath the help overlay.
type topBackground struct{ m topModel }

func (b topBackground) Init() tea.Cmd                       { return nil }
func (b topBackground) Update(tea.Msg) (tea.Model, tea.Cmd) { return b, nil }
func (b topBackground) View() string                        { return b.m.render() }

// helpBoxModel is the foreground of the help overlay.
type helpBoxModel struct{ content string }

func (h helpBoxModel) Init() tea.Cmd                       { return nil }
func (h helpBoxModel) Update(tea.Msg) (tea.Model, tea.Cmd) { return h, nil }
func (h helpBoxModel) View() string                        { return h.content }

var (
	primaryColor = lipgloss.Color("#7D56F4")
	successColor = lipgloss.Color("#04B575")
	mutedColor   = lipgloss.Color("#666666")
	borderColor  = lipgloss.Color("#383838")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1)

	helpBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	labelStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	valueStyle  = lipgloss.NewStyle().Bold(true)
	keyStyle    = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	statusStyle = lipgloss.NewStyle().Foreground(successColor)
)
