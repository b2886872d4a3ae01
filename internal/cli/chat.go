package cli

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"carequery/internal/agent"
	"carequery/internal/client"
	"carequery/internal/service"
)

var chatPatientID int

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive question-answer session for one patient",
	Long: `Start an interactive session. Each question runs a full
question-answer cycle; agent steps are shown while the answer is being
worked out.

Examples:
  carequery chat -p 143
  carequery chat -p 143 --server http://localhost:9180`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().IntVarP(&chatPatientID, "patient", "p", 0, "patient ID the session is about (required)")
	_ = chatCmd.MarkFlagRequired("patient")
}

// asker runs one question and reports transitions; implemented locally by
// the service and remotely by the API client.
type asker func(ctx context.Context, question string, onStep func(from, to string)) (string, error)

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var ask asker
	if remoteMode() {
		c := client.New(serverURL)
		ask = func(ctx context.Context, question string, onStep func(from, to string)) (string, error) {
			return c.AskStreaming(ctx, chatPatientID, question, func(f client.StepFrame) {
				onStep(f.From, f.To)
			})
		}
	} else {
		if err := ensureAPIKey(); err != nil {
			return err
		}
		s, err := getService(ctx)
		if err != nil {
			return err
		}
		ask = func(ctx context.Context, question string, onStep func(from, to string)) (string, error) {
			return s.RunCycleObserved(ctx, chatPatientID, question, func(from, to agent.State) {
				onStep(from.String(), to.String())
			})
		}
	}

	name, _ := service.PatientName(chatPatientID)
	model := newChatModel(chatPatientID, name, ask)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	if m, ok := finalModel.(chatModel); ok && m.err != nil {
		return m.err
	}
	return nil
}

// chatTheme holds the color scheme for the chat display.
type chatTheme struct {
	Question lipgloss.Color
	Answer   lipgloss.Color
	Error    lipgloss.Color
	Hint     lipgloss.Color
}

var defaultChatTheme = chatTheme{
	Question: lipgloss.Color("#5FAFD7"), // light blue
	Answer:   lipgloss.Color("#00D787"), // green
	Error:    lipgloss.Color("#FF005F"), // red
	Hint:     lipgloss.Color("#6C6C6C"), // dim gray
}

func (t chatTheme) questionStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Question).Bold(true)
}

func (t chatTheme) answerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Answer)
}

func (t chatTheme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t chatTheme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// stepMsg is one agent transition for the in-flight question.
type stepMsg string

// answerMsg closes out the in-flight question.
type answerMsg struct {
	answer string
	err    error
}

// chatModel is the bubbletea model for the interactive session.
type chatModel struct {
	patientID  int
	patient    string
	ask        asker
	input      textinput.Model
	spin       spinner.Model
	theme      chatTheme
	transcript []string
	step       string
	working    bool
	quitting   bool
	err        error
	steps      chan string
}

func newChatModel(patientID int, patient string, ask asker) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask about this patient's records..."
	ti.Focus()

	return chatModel{
		patientID: patientID,
		patient:   patient,
		ask:       ask,
		input:     ti,
		spin:      spinner.New(spinner.WithSpinner(spinner.Dot)),
		theme:     defaultChatTheme,
		steps:     make(chan string),
	}
}

func (m chatModel) Init() tea.Cmd {
	// One step listener runs for the whole session; each delivery re-arms it.
	return m.waitStep()
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if m.working {
				return m, nil
			}
			question := strings.TrimSpace(m.input.Value())
			if question == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.transcript = append(m.transcript,
				m.theme.questionStyle().Render("You: ")+question)
			m.working = true
			m.step = ""
			return m, tea.Batch(m.runQuestion(question), m.spin.Tick)
		}

	case stepMsg:
		m.step = string(msg)
		return m, m.waitStep()

	case answerMsg:
		m.working = false
		m.step = ""
		if msg.err != nil {
			m.transcript = append(m.transcript,
				m.theme.errorStyle().Render(service.Friendly(msg.err)))
		} else {
			m.transcript = append(m.transcript,
				m.theme.answerStyle().Render(msg.answer))
		}
		m.transcript = append(m.transcript, "")
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) View() tea.View {
	var b strings.Builder

	header := fmt.Sprintf("Patient %d", m.patientID)
	if m.patient != "" {
		header += ": " + m.patient
	}
	b.WriteString(m.theme.hintStyle().Render(header) + "\n\n")

	for _, line := range m.transcript {
		b.WriteString(line + "\n")
	}

	if m.working {
		step := m.step
		if step == "" {
			step = "thinking"
		}
		b.WriteString(m.spin.View() + " " + m.theme.hintStyle().Render(step) + "\n")
	} else {
		b.WriteString(m.input.View() + "\n")
		b.WriteString(m.theme.hintStyle().Render("Enter to ask, Esc to quit") + "\n")
	}

	return tea.NewView(b.String())
}

// runQuestion runs the cycle off the UI goroutine and delivers the final
// answer.
func (m chatModel) runQuestion(question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := m.ask(context.Background(), question, func(from, to string) {
			m.steps <- from + " -> " + to
		})
		return answerMsg{answer: answer, err: err}
	}
}

// waitStep delivers the next transition, if any, to the UI.
func (m chatModel) waitStep() tea.Cmd {
	return func() tea.Msg {
		return stepMsg(<-m.steps)
	}
}
