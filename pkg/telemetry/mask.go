package telemetry

import (
	"regexp"
	"runtime"

	"github.com/officedev/addin-telemetry/pkg/sink"
)

const maxStackDepth = 32

var (
	// userFilePaths matches a POSIX path, including its last segment.
	userFilePaths = regexp.MustCompile(`(?m)/(.*)/[^\s:'"()]*`)
	// userDirsFromStack matches the directories of a POSIX path, keeping the
	// file name so stack frames stay readable.
	userDirsFromStack = regexp.MustCompile(`(?m)/(.*)/`)
	// windowsDirsFromStack matches the directories of a drive path.
	windowsDirsFromStack = regexp.MustCompile(`(?im)\w:\\(?:[^\\\s]+\\)+`)
)

// MaskMessage removes file system paths from an error message.
func MaskMessage(msg string) string {
	return userFilePaths.ReplaceAllString(msg, "")
}

// MaskStack removes the directories of POSIX and Windows paths from a stack
// trace.
func MaskStack(stack string) string {
	stack = userDirsFromStack.ReplaceAllString(stack, "")
	return windowsDirsFromStack.ReplaceAllString(stack, "")
}

// MaskFilePaths returns a copy of e with paths removed from its message and
// from the file of every frame.
func MaskFilePaths(e sink.Exception) sink.Exception {
	e.Message = MaskMessage(e.Message)
	if e.Frames != nil {
		frames := make([]sink.Frame, len(e.Frames))
		for i, f := range e.Frames {
			f.File = MaskStack(f.File)
			frames[i] = f
		}
		e.Frames = frames
	}
	return e
}

// callers captures the stack of the caller, skipping skip frames above it.
func callers(skip int) []sink.Frame {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var out []sink.Frame
	for {
		frame, more := frames.Next()
		out = append(out, sink.Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more {
			break
		}
	}
	return out
}
