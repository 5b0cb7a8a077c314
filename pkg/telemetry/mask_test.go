package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/officedev/addin-telemetry/pkg/sink"
)

func TestMaskMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"posix path", "Cannot open /home/alice/project/secret.txt", "Cannot open "},
		{"path followed by text", "open /home/alice/project/secret.txt: permission denied", "open : permission denied"},
		{"no path", "something failed", "something failed"},
		{"each line separately", "a /Users/alice/x.js\nb /tmp/y.js", "a \nb "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MaskMessage(tt.msg))
		})
	}
}

func TestMaskMessage_RemovesUserData(t *testing.T) {
	t.Parallel()

	masked := MaskMessage("failed to read /home/alice/project/secret.txt")
	assert.NotContains(t, masked, "alice")
	assert.NotContains(t, masked, "secret.txt")
}

func TestMaskStack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		stack string
		want  string
	}{
		{"windows frame", `at run (C:\Users\alice\app\index.js:10:5)`, "at run (index.js:10:5)"},
		{"windows lower case drive", `d:\work\alice\main.go:3`, "main.go:3"},
		{"posix frame", "main.run\n\t/home/alice/src/tool/main.go:12", "main.run\n\tmain.go:12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := MaskStack(tt.stack)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "alice")
		})
	}
}

func TestMaskFilePaths(t *testing.T) {
	t.Parallel()

	exception := sink.Exception{
		Name:    "x",
		Message: "open /home/alice/secret.txt",
		Frames: []sink.Frame{
			{Function: "main.run", File: "/home/alice/src/main.go", Line: 4},
			{Function: "main.main", File: `C:\Users\alice\app\main.go`, Line: 9},
		},
	}

	masked := MaskFilePaths(exception)

	assert.Equal(t, "open ", masked.Message)
	assert.Equal(t, []sink.Frame{
		{Function: "main.run", File: "main.go", Line: 4},
		{Function: "main.main", File: "main.go", Line: 9},
	}, masked.Frames)
	assert.NotContains(t, masked.Stack(), "alice")

	assert.Equal(t, "/home/alice/src/main.go", exception.Frames[0].File, "input is not modified")
}
