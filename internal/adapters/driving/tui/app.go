package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/vellum/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/vellum/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/vellum/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/vellum/internal/core/domain"
)

// noContentText is shown when nothing indexed passed the similarity floor.
const noContentText = "No indexed content is relevant to this question."

// chromeHeight is the number of rows used by the title, input and status line.
const chromeHeight = 5

// exchange is one question and its outcome in the transcript.
type exchange struct {
	question string
	result   *domain.QueryResult
	err      error

	// cancelled is set when the user abandoned the answer.
	cancelled bool
}

// App is the chat application following the Elm architecture.
// It implements tea.Model for use with Bubbletea.
type App struct {
	// ports provides access to core services via driving ports.
	ports *Ports

	// ctx is the parent context for queries.
	ctx context.Context

	styles *styles.Styles
	keys   *keymap.KeyMap

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	// transcript holds the conversation so far, oldest first.
	transcript []exchange

	// prior is the last answered turn; follow-ups are resolved against it.
	prior *domain.Turn

	// restrict limits follow-ups to the sources cited by prior.
	restrict bool

	// seq identifies the in-flight question. Results with another seq are stale.
	seq     int
	pending bool
	cancel  context.CancelFunc

	width  int
	height int
	ready  bool
}

// Ensure App implements tea.Model.
var _ tea.Model = (*App)(nil)

// NewApp creates a new chat application with the given ports.
func NewApp(ports *Ports) (*App, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}

	s := styles.DefaultStyles()

	input := textinput.New()
	input.Placeholder = "Ask about your documents and mail..."
	input.Prompt = "> "
	input.PromptStyle = s.Question
	input.CharLimit = 2000
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = s.Muted

	return &App{
		ports:    ports,
		ctx:      context.Background(),
		styles:   s,
		keys:     keymap.DefaultKeyMap(),
		input:    input,
		viewport: viewport.New(0, 0),
		spinner:  spin,
	}, nil
}

// WithContext sets the context for the app.
func (a *App) WithContext(ctx context.Context) *App {
	a.ctx = ctx
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tea.SetWindowTitle("vellum"),
	)
}

// Update implements tea.Model.
//
//nolint:gocyclo // central message handler
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.SetDimensions(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case messages.AnswerCompleted:
		if msg.Seq != a.seq || !a.pending {
			return a, nil
		}
		a.pending = false
		a.cancel = nil
		last := &a.transcript[len(a.transcript)-1]
		last.result = msg.Result
		last.err = msg.Err
		if msg.Err == nil && msg.Result != nil && !msg.Result.NoRelevantContent {
			a.prior = &domain.Turn{
				Question:  msg.Question,
				Answer:    msg.Result.Answer,
				Citations: msg.Result.Citations,
			}
		}
		a.refresh()
		return a, nil

	case messages.ConversationReset:
		a.reset()
		return a, nil

	case spinner.TickMsg:
		if !a.pending {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		a.refresh()
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		if a.cancel != nil {
			a.cancel()
		}
		return a, tea.Quit

	case key.Matches(msg, a.keys.Cancel):
		if a.pending {
			a.cancel()
			a.cancel = nil
			a.pending = false
			a.transcript[len(a.transcript)-1].cancelled = true
			a.refresh()
		}
		return a, nil

	case key.Matches(msg, a.keys.NewConversation):
		return a, func() tea.Msg { return messages.ConversationReset{} }

	case key.Matches(msg, a.keys.ToggleRestrict):
		a.restrict = !a.restrict
		return a, nil

	case key.Matches(msg, a.keys.ScrollUp), key.Matches(msg, a.keys.ScrollDown):
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd

	case key.Matches(msg, a.keys.Ask):
		return a, a.ask()
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// ask sends the question in the input. Only one question is in flight at a time.
func (a *App) ask() tea.Cmd {
	question := strings.TrimSpace(a.input.Value())
	if question == "" || a.pending {
		return nil
	}

	query := domain.Query{
		OwnerID:  a.ports.OwnerID,
		Question: question,
	}
	if a.prior != nil {
		prior := *a.prior
		prior.Restrict = a.restrict
		query.Prior = &prior
	}

	ctx, cancel := context.WithCancel(a.ctx)
	a.seq++
	a.pending = true
	a.cancel = cancel
	a.transcript = append(a.transcript, exchange{question: question})
	a.input.Reset()
	a.refresh()

	return tea.Batch(a.spinner.Tick, answerCmd(ctx, a.ports, a.seq, query))
}

func answerCmd(ctx context.Context, ports *Ports, seq int, query domain.Query) tea.Cmd {
	return func() tea.Msg {
		result, err := ports.Query.Answer(ctx, query)
		return messages.AnswerCompleted{
			Seq:      seq,
			Question: query.Question,
			Result:   result,
			Err:      err,
		}
	}
}

func (a *App) reset() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.seq++
	a.pending = false
	a.prior = nil
	a.transcript = nil
	a.input.Reset()
	a.refresh()
}

// refresh re-renders the transcript into the viewport and scrolls to the end.
func (a *App) refresh() {
	a.viewport.SetContent(a.renderTranscript())
	a.viewport.GotoBottom()
}

func (a *App) renderTranscript() string {
	if len(a.transcript) == 0 {
		return a.styles.Muted.Render("Ask a question to get started.")
	}

	width := a.width
	if width <= 0 {
		width = 80
	}
	answerStyle := a.styles.Answer.Width(width)

	var b strings.Builder
	for i, ex := range a.transcript {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(a.styles.Question.Render("> " + ex.question))
		b.WriteString("\n")

		switch {
		case ex.cancelled:
			b.WriteString(a.styles.Muted.Render("(cancelled)"))
		case ex.err != nil:
			b.WriteString(a.styles.Error.Render("Error: " + ex.err.Error()))
		case ex.result == nil:
			b.WriteString(a.spinner.View() + a.styles.Muted.Render(" thinking..."))
		case ex.result.NoRelevantContent:
			b.WriteString(a.styles.Warning.Render(noContentText))
		default:
			b.WriteString(answerStyle.Render(ex.result.Answer))
			for _, c := range ex.result.Citations {
				b.WriteString("\n")
				b.WriteString(a.styles.Citation.Render(formatCitation(c)))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatCitation renders a citation as "[n] reference (confidence score)".
func formatCitation(c domain.Citation) string {
	ref := c.Chunk.Reference
	if ref == "" {
		ref = c.Chunk.SourceID
	}
	return fmt.Sprintf("[%d] %s (%s %.2f)", c.Rank, ref, c.Confidence, c.Score)
}

// View implements tea.Model.
func (a *App) View() string {
	if !a.ready {
		return "Initialising..."
	}

	title := a.styles.Title.Render("vellum")
	if a.prior != nil {
		title += a.styles.Muted.Render("  follow-up")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		a.viewport.View(),
		a.styles.InputField.Width(max(a.width-2, 1)).Render(a.input.View()),
		a.statusLine(),
	)
}

func (a *App) statusLine() string {
	parts := make([]string, 0, 5)
	if a.restrict {
		parts = append(parts, "cited sources only")
	}
	for _, b := range a.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return a.styles.StatusBar.Render(strings.Join(parts, " • "))
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithContext(a.ctx))
	_, err := p.Run()
	return err
}

// Pending reports whether a question is awaiting its answer.
func (a *App) Pending() bool {
	return a.pending
}

// Restrict reports whether follow-ups stay on the cited sources.
func (a *App) Restrict() bool {
	return a.restrict
}

// Prior returns the turn follow-ups are resolved against, if any.
func (a *App) Prior() *domain.Turn {
	return a.prior
}

// Ready returns whether the app has been initialised.
func (a *App) Ready() bool {
	return a.ready
}

// SetDimensions sets the terminal dimensions.
func (a *App) SetDimensions(width, height int) {
	a.width = width
	a.height = height
	a.ready = true
	a.input.Width = max(width-6, 10)
	a.viewport.Width = width
	a.viewport.Height = max(height-chromeHeight, 1)
	a.refresh()
}
