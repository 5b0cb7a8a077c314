// Package prompt asks the user a yes/no question and waits for the answer.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ErrNotInteractive is returned by Terminal when its input is not a terminal,
// so nobody could answer the question.
var ErrNotInteractive = errors.New("input is not an interactive terminal")

// Prompter asks a question and blocks until an answer is available.
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Confirmer is implemented by prompters that can show the outcome of the
// question back to the user.
type Confirmer interface {
	Confirm(enabled bool)
}

// Answer is a Prompter that always replies with itself. It stands in for the
// user in tests and non-interactive runs.
type Answer string

func (a Answer) Ask(context.Context, string) (string, error) {
	return string(a), nil
}

// Func adapts a function to the Prompter interface.
type Func func(ctx context.Context, question string) (string, error)

func (f Func) Ask(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

var (
	questionColor = color.New(color.FgBlue).SprintFunc()
	confirmColor  = color.New(color.FgGreen).SprintFunc()
)

// Terminal prompts on an output stream and reads one line from an input
// stream.
type Terminal struct {
	in  io.Reader
	out io.Writer

	// interactive reports whether a person can answer on in.
	interactive func() bool
}

// NewTerminal returns a Terminal reading from in and writing to out. When in
// is an *os.File that is not a terminal, Ask fails with ErrNotInteractive
// instead of blocking.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		in:          in,
		out:         out,
		interactive: func() bool { return isTerminal(in) },
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return true
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Ask writes question followed by a newline and returns the next line read,
// without its line terminator.
func (t *Terminal) Ask(ctx context.Context, question string) (string, error) {
	if !t.interactive() {
		return "", ErrNotInteractive
	}

	if _, err := io.WriteString(t.out, questionColor(question)+"\n"); err != nil {
		return "", err
	}

	line, err := ReadLine(ctx, t.in)
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Confirm tells the user what was recorded.
func (t *Terminal) Confirm(enabled bool) {
	msg := "You will not be sending telemetry"
	if enabled {
		msg = "Telemetry will be sent!"
	}
	_, _ = io.WriteString(t.out, confirmColor(msg)+"\n")
}

// ReadLine reads a single line from rd, giving up when ctx is done. A final
// line without a newline is returned together with io.EOF.
func ReadLine(ctx context.Context, rd io.Reader) (string, error) {
	type result struct {
		line string
		err  error
	}
	results := make(chan result, 1)

	go func() {
		reader := bufio.NewReader(rd)
		line, err := reader.ReadString('\n')
		results <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-results:
		return r.line, r.err
	}
}
