package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/flowlab/internal/document"
	"github.com/san-kum/flowlab/internal/runner"
)

const (
	logCapacity    = 8
	barWidth       = 40
	sparkWidth     = 40
	stepHistoryCap = 200
)

// Commander is the part of runner.Controller the panel drives.
type Commander interface {
	Step() error
	RunTo(target time.Time) error
	Run() error
	Kill() error
	Status() runner.Status
}

type eventMsg runner.Event

type eventsClosedMsg struct{}

// Panel is the interactive run panel. It is a tea.Model.
type Panel struct {
	ctrl   Commander
	events <-chan runner.Event
	title  string
	theme  Theme
	st     styles

	status    string
	last      runner.Progress
	hasModel  bool
	busy      bool
	finished  bool
	failure   string
	cmdErr    string
	dateField string
	log       []string

	stepStart time.Time
	stepTimes []float64
	now       func() time.Time
}

// NewPanel builds a panel reading from events, which is normally a
// ChannelListener registered on ctrl before Start. initialDate seeds the
// date field.
func NewPanel(ctrl Commander, events <-chan runner.Event, title string, initialDate time.Time) Panel {
	p := Panel{
		ctrl:   ctrl,
		events: events,
		title:  title,
		theme:  ThemeRiver,
		st:     newStyles(ThemeRiver),
		status: "Starting...",
		now:    time.Now,
	}
	if !initialDate.IsZero() {
		p.dateField = initialDate.Format(document.DateLayout)
	}
	return p
}

func (p Panel) WithTheme(name string) Panel {
	p.theme = GetTheme(name)
	p.st = newStyles(p.theme)
	return p
}

func waitForEvent(events <-chan runner.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(e)
	}
}

func (p Panel) Init() tea.Cmd {
	return waitForEvent(p.events)
}

func (p Panel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return p.handleKey(msg)
	case eventMsg:
		p.handleEvent(runner.Event(msg))
		return p, waitForEvent(p.events)
	case eventsClosedMsg:
		p.finished = true
		p.busy = false
	}
	return p, nil
}

func (p Panel) handleKey(msg tea.KeyMsg) (Panel, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		if !p.finished {
			_ = p.ctrl.Kill()
		}
		return p, tea.Quit
	case "s":
		if p.canCommand() {
			p.issue(p.ctrl.Step())
		}
	case "d":
		if p.canCommand() {
			target, err := time.Parse(document.DateLayout, p.dateField)
			if err != nil {
				p.cmdErr = fmt.Sprintf("bad date %q, want YYYY-MM-DD", p.dateField)
				return p, nil
			}
			p.issue(p.ctrl.RunTo(target))
		}
	case "e":
		if p.canCommand() {
			p.issue(p.ctrl.Run())
		}
	case "k":
		if p.canKill() {
			p.issue(p.ctrl.Kill())
		}
	case "t":
		p.theme = nextTheme(p.theme)
		p.st = newStyles(p.theme)
	case "backspace":
		if n := len(p.dateField); n > 0 {
			p.dateField = p.dateField[:n-1]
		}
	default:
		if len(key) == 1 && strings.ContainsAny(key, "0123456789-") && len(p.dateField) < len(document.DateLayout) {
			p.dateField += key
		}
	}
	return p, nil
}

func (p *Panel) issue(err error) {
	if err != nil {
		p.cmdErr = err.Error()
		return
	}
	p.cmdErr = ""
	p.busy = true
}

// canCommand reports whether step and run commands are enabled: a model is
// loaded and the loop is not busy.
func (p Panel) canCommand() bool {
	return p.hasModel && !p.busy && !p.finished
}

func (p Panel) canKill() bool {
	return p.hasModel && !p.finished
}

func (p *Panel) handleEvent(e runner.Event) {
	switch e.Kind {
	case runner.EventStatus:
		p.status = e.Message
		if st := p.ctrl.Status(); st.HasModel && !p.hasModel && !p.finished {
			p.hasModel = true
			p.last = st.Last
		}
	case runner.EventModelLoadError:
		p.failure = "Model load failed: " + e.Message
	case runner.EventBeforeStep, runner.EventBeforeRunToDate:
		p.busy = true
		p.stepStart = p.now()
	case runner.EventProgress:
		p.last = e.Progress
		p.status = "Running"
		if !p.stepStart.IsZero() {
			elapsed := p.now().Sub(p.stepStart)
			p.stepTimes = append(p.stepTimes, float64(elapsed.Microseconds())/1000)
			if len(p.stepTimes) > stepHistoryCap {
				p.stepTimes = p.stepTimes[1:]
			}
		}
		p.stepStart = p.now()
	case runner.EventStepDone, runner.EventRunToDateDone:
		p.busy = false
		p.status = "Paused"
	case runner.EventStepError:
		p.failure = "Step failed: " + e.Message
	case runner.EventFinished:
		p.finished = true
		p.busy = false
		p.hasModel = false
		p.status = "Finished"
	}
	if e.Kind != runner.EventProgress {
		p.appendLog(e.String())
	}
}

func (p *Panel) appendLog(line string) {
	p.log = append(p.log, line)
	if len(p.log) > logCapacity {
		p.log = p.log[len(p.log)-logCapacity:]
	}
}

func (p Panel) View() string {
	var s strings.Builder
	s.WriteString(p.st.title.Render(strings.ToUpper(p.title)) + "\n\n")

	statusStyle := p.st.paused
	switch {
	case p.failure != "":
		statusStyle = p.st.failed
	case p.busy:
		statusStyle = p.st.running
	}
	s.WriteString(p.st.label.Render("Status") + statusStyle.Render(p.status) + "\n")

	if p.last.LastIndex > 0 {
		s.WriteString(p.st.label.Render("Period") + p.st.value.Render(p.last.String()) + "\n")
		s.WriteString(p.st.label.Render("") + p.st.progressBar(p.last.Fraction(), barWidth) +
			p.st.muted.Render(fmt.Sprintf(" %3.0f%%", p.last.Fraction()*100)) + "\n")
	}
	if len(p.stepTimes) > 0 {
		s.WriteString(p.st.label.Render("ms/step") + p.st.muted.Render(sparkline(p.stepTimes, sparkWidth)) + "\n")
	}
	s.WriteString(p.st.label.Render("Run to") + p.st.value.Render(p.dateField) + p.st.muted.Render("▏") + "\n")

	if p.failure != "" {
		s.WriteString("\n" + p.st.failed.Render(p.failure) + "\n")
	}
	if p.cmdErr != "" {
		s.WriteString("\n" + p.st.failed.Render(p.cmdErr) + "\n")
	}

	s.WriteString("\n" + p.st.muted.Render("EVENTS") + "\n")
	for _, line := range p.log {
		s.WriteString(p.st.muted.Render("  "+line) + "\n")
	}

	s.WriteString("\n" + p.keys())
	return p.st.panel.Render(s.String())
}

func (p Panel) keys() string {
	key := func(label string, enabled bool) string {
		if enabled {
			return p.st.enabled.Render(label)
		}
		return p.st.disabled.Render(label)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		key("[s] step  ", p.canCommand()),
		key("[d] run to  ", p.canCommand()),
		key("[e] run  ", p.canCommand()),
		key("[k] kill  ", p.canKill()),
		p.st.muted.Render("[t] theme  [q] quit"),
	)
}

// Finished reports whether the session has ended.
func (p Panel) Finished() bool { return p.finished }

// Failure returns the load or step failure shown by the panel, if any.
func (p Panel) Failure() string { return p.failure }
