// Package statusui renders live per-package fetch status on the terminal
// and carries the run's user-facing messages.
package statusui

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	program     *tea.Program
	programLock sync.Mutex
)

type setStatusMsg struct {
	key    string
	status Status
}

type clearStatusMsg struct {
	key string
}

type logMsg struct {
	message string
}

type model struct {
	statuses map[string]Status
	keys     []string // render order
	logs     []string // persistent lines above the statuses
}

func initialModel() model {
	return model{
		statuses: make(map[string]Status),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case setStatusMsg:
		m.statuses[msg.key] = msg.status
		if !slices.Contains(m.keys, msg.key) {
			m.keys = append(m.keys, msg.key)
		}

	case clearStatusMsg:
		delete(m.statuses, msg.key)
		m.keys = slices.DeleteFunc(slices.Clone(m.keys), func(k string) bool {
			return k == msg.key
		})

	case logMsg:
		trimmed := strings.TrimRight(msg.message, " \t\n\r")
		if trimmed != "" {
			m.logs = append(m.logs, trimmed)
		}
	}

	return m, nil
}

func (m model) View() string {
	var output strings.Builder

	for i, line := range m.logs {
		if i > 0 {
			output.WriteString("\n")
		}
		output.WriteString(line)
	}

	for _, key := range m.keys {
		if status, ok := m.statuses[key]; ok {
			if output.Len() > 0 {
				output.WriteString("\n")
			}
			output.WriteString(status.Render())
		}
	}

	return output.String()
}

// Start initializes the Bubbletea program
func Start() error {
	programLock.Lock()
	defer programLock.Unlock()

	if program != nil {
		return fmt.Errorf("TUI already running")
	}

	// inline rendering, no alternate screen
	p := tea.NewProgram(
		initialModel(),
		tea.WithOutput(os.Stderr),
		tea.WithoutSignalHandler(),
		tea.WithInput(nil),
		tea.WithFPS(10),
	)
	program = p

	go func() {
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		}
	}()

	return nil
}

// Stop terminates the Bubbletea program and replays the persistent lines.
func Stop() {
	programLock.Lock()
	defer programLock.Unlock()

	if program != nil {
		program.Quit()
		program = nil
		time.Sleep(100 * time.Millisecond)
		fmt.Fprint(os.Stderr, printAfterTuiClose.String())
		printAfterTuiClose.Reset()
	}
}

// Set updates or creates a status for the given key
func Set(key string, status Status) bool {
	programLock.Lock()
	p := program
	programLock.Unlock()

	if p == nil {
		return false
	}

	p.Send(setStatusMsg{key: key, status: status})
	return true
}

// Clear removes a status for the given key
func Clear(key string) {
	programLock.Lock()
	p := program
	programLock.Unlock()

	if p == nil {
		return
	}

	p.Send(clearStatusMsg{key: key})
}

type logLevel uint8

const (
	LogLevelInfo logLevel = iota
	LogLevelWarn
	LogLevelError
	LogLevelSuccess
)

var (
	logInfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	logWarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	logErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	logSuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
)

var (
	printAfterTuiClose strings.Builder
	// fallback sink while no program runs
	plainOut io.Writer = os.Stderr
)

// Log sends a log message to the TUI
func Log(message string, level logLevel) {
	programLock.Lock()
	defer programLock.Unlock()
	p := program

	var style lipgloss.Style
	switch level {
	case LogLevelWarn:
		style = logWarnStyle
	case LogLevelError:
		style = logErrorStyle
	case LogLevelSuccess:
		style = logSuccessStyle
	default:
		style = logInfoStyle
	}
	message = style.Render(message)

	if p == nil {
		fmt.Fprintln(plainOut, message)
		return
	}

	printAfterTuiClose.WriteString(message)
	printAfterTuiClose.WriteRune('\n')

	p.Send(logMsg{message: message})
}

// LogWriter is an io.Writer that sends output to the TUI
type LogWriter struct{}

func (lw *LogWriter) Write(p []byte) (n int, err error) {
	if len(p) > 0 {
		Log(string(p), LogLevelInfo)
	}
	return len(p), nil
}

// GetLogWriter returns a writer that sends output to the TUI
func GetLogWriter() io.Writer {
	return &LogWriter{}
}
