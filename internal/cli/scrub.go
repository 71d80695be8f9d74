package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/layerview/pkg/errors"
	lvio "github.com/matzehuels/layerview/pkg/io"
	"github.com/matzehuels/layerview/pkg/pipeline"
)

// Scrub styles
var (
	scrubLayerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	scrubDimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	scrubBusyStyle  = lipgloss.NewStyle().Foreground(colorYellow)
	scrubBarFull    = lipgloss.NewStyle().Foreground(colorGreen)
	scrubBarEmpty   = lipgloss.NewStyle().Foreground(colorDim)
)

const scrubBarWidth = 30

// scrubCommand creates the scrub command, an interactive layer scrubber.
func (c *CLI) scrubCommand() *cobra.Command {
	var layer int

	cmd := &cobra.Command{
		Use:   "scrub [project.json]",
		Short: "Step through the layers of a project interactively",
		Long: `Step through the layers of a project interactively.

Every key press requests a new layer the way the terminal's layer slider
does. Requests made while a build is running replace each other, so holding
a key down only ever builds the latest layer.

Keys:
  ←/→       one layer
  ↑/↓       ten layers
  pgup/pgdn a hundred layers
  home/end  first/last layer
  q         quit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runScrub(cmd.Context(), args[0], layer)
		},
	}

	cmd.Flags().IntVarP(&layer, "layer", "l", 0, "start layer, 1-based (default: last layer)")

	return cmd
}

func (c *CLI) runScrub(ctx context.Context, path string, layer int) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	p, err := lvio.ImportProject(path)
	if err != nil {
		return err
	}
	if p.LayerCount() == 0 {
		return errors.New(errors.ErrCodeInvalidProject, "project %q has no layers", p.Name)
	}

	refresh := make(chan struct{}, 1)
	notify := func() {
		select {
		case refresh <- struct{}{}:
		default:
		}
	}
	sess, err := c.newSession(cfg, func(o *pipeline.Options) {
		// The alternate screen owns the terminal while scrubbing.
		o.Logger = newLogger(io.Discard, LogInfo)
		o.OnFrame = func(pipeline.Frame) { notify() }
		o.OnProgress = func(pipeline.Progress) { notify() }
		o.OnLoading = func(bool) { notify() }
	})
	if err != nil {
		return err
	}
	defer close(refresh)
	defer sess.Close()

	if _, err := sess.LoadProject(p); err != nil {
		return err
	}
	if layer == 0 {
		layer = p.LayerCount()
	}
	if err := sess.SetCurrentLayer(layer); err != nil {
		return err
	}

	m := newScrubModel(sess, p.Name, p.LayerCount(), layer, refresh)
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("scrub: %w", err)
	}
	return nil
}

// =============================================================================
// scrubModel - Interactive layer scrubber
// =============================================================================

// scrubSource is the part of a session the scrubber drives.
type scrubSource interface {
	SetCurrentLayer(n int) error
	Current() (pipeline.Frame, bool)
	Status() pipeline.Status
}

// refreshMsg signals that the session delivered a frame, progress or a
// loading change.
type refreshMsg struct{}

// scrubModel is the bubbletea model for the layer scrubber.
type scrubModel struct {
	src     scrubSource
	name    string
	layers  int
	target  int // requested layer, 1-based
	refresh <-chan struct{}

	frame    pipeline.Frame
	hasFrame bool
	status   pipeline.Status
	err      error
}

func newScrubModel(src scrubSource, name string, layers, start int, refresh <-chan struct{}) scrubModel {
	m := scrubModel{
		src:     src,
		name:    name,
		layers:  layers,
		target:  start,
		refresh: refresh,
	}
	m.sync()
	return m
}

func (m scrubModel) Init() tea.Cmd {
	return waitForRefresh(m.refresh)
}

func waitForRefresh(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return refreshMsg{}
	}
}

func (m scrubModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "right", "l":
			m.step(1)
		case "left", "h":
			m.step(-1)
		case "up", "k":
			m.step(10)
		case "down", "j":
			m.step(-10)
		case "pgup":
			m.step(100)
		case "pgdown":
			m.step(-100)
		case "home":
			m.jump(1)
		case "end":
			m.jump(m.layers)
		}
	case refreshMsg:
		m.sync()
		return m, waitForRefresh(m.refresh)
	}
	return m, nil
}

func (m *scrubModel) step(delta int) {
	m.jump(m.target + delta)
}

// jump requests layer n, clamped to the project.
func (m *scrubModel) jump(n int) {
	n = max(1, min(n, m.layers))
	if n == m.target {
		return
	}
	m.target = n
	m.err = m.src.SetCurrentLayer(n)
	m.sync()
}

func (m *scrubModel) sync() {
	m.frame, m.hasFrame = m.src.Current()
	m.status = m.src.Status()
}

func (m scrubModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(m.name))
	b.WriteString("\n\n")

	b.WriteString(scrubLayerStyle.Render(fmt.Sprintf("%s Layer %d", iconLayer, m.target)))
	b.WriteString(scrubDimStyle.Render(fmt.Sprintf(" / %d", m.layers)))
	b.WriteString("\n")
	b.WriteString(renderBar(m.target, m.layers))
	b.WriteString("\n\n")

	if m.hasFrame {
		b.WriteString(fmt.Sprintf("Showing layers 1-%d  ", m.frame.Layers))
		b.WriteString(scrubDimStyle.Render(fmt.Sprintf("%d triangles", m.frame.Geometry.TriangleCount())))
	} else {
		b.WriteString(scrubDimStyle.Render("No frame yet"))
	}
	if m.status.Loading {
		b.WriteString("  " + scrubBusyStyle.Render("building..."))
	}
	b.WriteString("\n")

	pr := m.status.Progress
	if pr.Complete {
		b.WriteString(scrubDimStyle.Render(fmt.Sprintf("Layer cache ready (%d layers)", pr.Total)))
	} else {
		b.WriteString(scrubDimStyle.Render(fmt.Sprintf("Caching layers %d/%d (%.0f%%)", pr.Done, pr.Total, pr.Percent())))
	}
	b.WriteString(scrubDimStyle.Render(fmt.Sprintf("  ·  cumulative %d/%d", m.status.CachedMerged, m.status.MergedCapacity)))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(styleIconError.Render(iconError) + " " + errors.UserMessage(m.err))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(scrubDimStyle.Render("←/→ ±1  ↑/↓ ±10  pgup/pgdn ±100  home/end  q quit"))
	return b.String()
}

// renderBar draws n of total as a fixed-width bar.
func renderBar(n, total int) string {
	filled := 0
	if total > 0 {
		filled = scrubBarWidth * n / total
	}
	return scrubBarFull.Render(strings.Repeat("█", filled)) +
		scrubBarEmpty.Render(strings.Repeat("░", scrubBarWidth-filled))
}
