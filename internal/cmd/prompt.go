package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/stagectl/internal/staging"
)

// confirmModel is a one-line yes/no prompt. An empty answer or "y" accepts.
type confirmModel struct {
	question string
	input    textinput.Model
	answered bool
	accept   bool
}

func newConfirmModel(question string) confirmModel {
	ti := textinput.New()
	ti.Prompt = ""
	ti.CharLimit = 16
	ti.Focus()
	return confirmModel{question: question, input: ti}
}

func (m confirmModel) Init() tea.Cmd { return textinput.Blink }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.answered = true
			m.accept = false
			return m, tea.Quit
		case tea.KeyEnter:
			m.answered = true
			m.accept = acceptAnswer(m.input.Value())
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m confirmModel) View() string {
	if m.answered {
		return promptStyle.Render(m.question) + m.input.Value() + "\n"
	}
	return promptStyle.Render(m.question) + m.input.View()
}

func acceptAnswer(answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "" || answer == "y"
}

// confirmer returns the proposal confirmation for cmd: --yes approves
// without asking, a terminal gets an interactive prompt and anything else
// is read line by line.
func confirmer(cmd *cobra.Command) staging.Confirmer {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return staging.AlwaysConfirm
	}
	in := cmd.InOrStdin()
	out := cmd.OutOrStdout()
	return staging.ConfirmFunc(func(ctx context.Context, question string) (bool, error) {
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return promptTerminal(ctx, f, out, question)
		}
		return promptLine(in, out, question)
	})
}

func promptTerminal(ctx context.Context, in *os.File, out io.Writer, question string) (bool, error) {
	p := tea.NewProgram(newConfirmModel(question),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	return final.(confirmModel).accept, nil
}

// promptLine reads the answer from a non-terminal input such as a pipe.
// Input that ends before an answer declines.
func promptLine(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprint(out, question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err == io.EOF && line == "" {
		fmt.Fprintln(out)
		return false, nil
	}
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read answer: %w", err)
	}
	return acceptAnswer(line), nil
}
