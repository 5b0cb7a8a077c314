package prompt

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestTerminal_Ask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unix newline", "y\n", "y"},
		{"windows newline", "Y\r\n", "Y"},
		{"no newline", "n", "n"},
		{"only first line", "yes\nno\n", "yes"},
		{"empty line", "\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			term := NewTerminal(strings.NewReader(tt.input), &out)

			got, err := term.Ask(t.Context(), "Share data? Y/N")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "Share data? Y/N\n", out.String())
		})
	}
}

func TestTerminal_AskEmptyInput(t *testing.T) {
	t.Parallel()

	term := NewTerminal(strings.NewReader(""), io.Discard)

	_, err := term.Ask(t.Context(), "question")
	assert.ErrorIs(t, err, io.EOF)
}

func TestTerminal_NotInteractive(t *testing.T) {
	t.Parallel()

	term := NewTerminal(strings.NewReader("y\n"), io.Discard)
	term.interactive = func() bool { return false }

	_, err := term.Ask(t.Context(), "question")
	assert.ErrorIs(t, err, ErrNotInteractive)
}

func TestTerminal_Confirm(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	term := NewTerminal(strings.NewReader(""), &out)

	term.Confirm(true)
	term.Confirm(false)

	assert.Equal(t, "Telemetry will be sent!\nYou will not be sending telemetry\n", out.String())
}

func TestReadLine_ContextCancelled(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := ReadLine(ctx, pr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnswer(t *testing.T) {
	t.Parallel()

	got, err := Answer("y").Ask(t.Context(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, "y", got)
}
