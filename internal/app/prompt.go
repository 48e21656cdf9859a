package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"dt-go/internal/dt"
)

var errNotInteractive = errors.New("stdin is not a terminal")

var (
	optionIndexStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	questionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
)

// LinePrompter reads operator answers one line at a time.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

var _ dt.Prompter = (*LinePrompter)(nil)

// NewLinePrompter creates a prompter reading from in and writing to out.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

// Prompt lists options as "[index] option" and reads one line. End of
// input is an empty answer.
func (p *LinePrompter) Prompt(ctx context.Context, question string, options []string) (string, error) {
	for i, o := range options {
		fmt.Fprintf(p.out, "%s %s\n", optionIndexStyle.Render(fmt.Sprintf("[%d]", i)), o)
	}
	fmt.Fprint(p.out, questionStyle.Render(question))

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-ch:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return "", a.err
		}
		return strings.TrimSpace(a.line), nil
	}
}

// NewTerminalPrompter returns a prompter on stdin and stdout, or nil when
// stdin is not a terminal.
func NewTerminalPrompter() dt.Prompter {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	return NewLinePrompter(os.Stdin, os.Stdout)
}

// AskPassword reads a password from the terminal without echo.
func AskPassword(host string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNotInteractive
	}
	fmt.Fprint(os.Stderr, questionStyle.Render(fmt.Sprintf("password for %s: ", host)))
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}
