// Package levelmeter renders a horizontal microphone level meter from the
// most recent input samples.
package levelmeter

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alkime/callcoach/internal/tui/style"
	"github.com/alkime/callcoach/pkg/uictl"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	// Floor is the quietest level shown, in dBFS.
	Floor = -60.0

	// clipThreshold is the absolute sample value treated as clipping.
	clipThreshold = 32000

	fullScale = 32768.0
	refresh   = 50 * time.Millisecond
)

// TickMsg triggers a redraw.
type TickMsg struct{}

// Reading is the loudness of one sample window.
type Reading struct {
	RMS     float64 // dBFS, Floor when silent
	Peak    float64 // dBFS, Floor when silent
	Clipped bool
}

// Measure computes RMS and peak levels in dBFS.
func Measure(samples []int16) Reading {
	if len(samples) == 0 {
		return Reading{RMS: Floor, Peak: Floor}
	}

	var (
		sum  float64
		peak int
	)
	for _, s := range samples {
		v := int(s)
		sum += float64(v * v)
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}

	rms := math.Sqrt(sum / float64(len(samples)))

	return Reading{
		RMS:     toDBFS(rms),
		Peak:    toDBFS(float64(peak)),
		Clipped: peak >= clipThreshold,
	}
}

func toDBFS(amp float64) float64 {
	if amp <= 0 {
		return Floor
	}
	return max(Floor, min(0, 20*math.Log10(amp/fullScale)))
}

// Model draws RMS as a filled bar with a peak marker.
type Model struct {
	levels uictl.Levels[int16]
	width  int
}

// New creates a meter width cells wide reading from levels. levels may be
// nil, which renders an empty meter.
func New(levels uictl.Levels[int16], width int) Model {
	return Model{
		levels: levels,
		width:  max(width, 1),
	}
}

// Init starts the redraw ticks.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update schedules the next redraw on each tick.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if _, ok := msg.(TickMsg); ok {
		return m, m.tick()
	}

	return m, nil
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(refresh, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Reading returns the current level.
func (m Model) Reading() Reading {
	if m.levels == nil {
		return Measure(nil)
	}
	return Measure(m.levels.Read())
}

// View renders the bar followed by the RMS level.
func (m Model) View() string {
	r := m.Reading()

	filled := m.cells(r.RMS)
	peak := m.cells(r.Peak)

	var bar strings.Builder
	for i := range m.width {
		switch {
		case i < filled:
			bar.WriteRune('█')
		case peak > 0 && i == peak-1:
			bar.WriteRune('▌')
		default:
			bar.WriteRune('·')
		}
	}

	var sb strings.Builder
	sb.WriteString(style.Progress.Render(bar.String()))
	sb.WriteString(" ")
	if r.RMS <= Floor {
		sb.WriteString(style.Muted.Render("silent"))
	} else {
		sb.WriteString(style.Subtitle.Render(fmt.Sprintf("%d dB", int(math.Round(r.RMS)))))
	}
	if r.Clipped {
		sb.WriteString(" ")
		sb.WriteString(style.Error.Render("CLIP"))
	}

	return sb.String()
}

// cells maps a dBFS level onto the meter width.
func (m Model) cells(db float64) int {
	if db <= Floor {
		return 0
	}
	frac := (db - Floor) / -Floor
	return min(m.width, int(math.Round(frac*float64(m.width))))
}
