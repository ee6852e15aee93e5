package internal

import (
	"context"
	"io"
	"os"

	"golang.org/x/term"
)

type (
	stdoutKey struct{}
	stderrKey struct{}
	stdinKey  struct{}
)

func WithStdout(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, stdoutKey{}, w)
}

func Stdout(ctx context.Context) io.Writer {
	w, ok := ctx.Value(stdoutKey{}).(io.Writer)
	if !ok {
		return os.Stdout
	}
	return w
}

func WithStderr(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, stderrKey{}, w)
}

func Stderr(ctx context.Context) io.Writer {
	w, ok := ctx.Value(stderrKey{}).(io.Writer)
	if !ok {
		return os.Stderr
	}
	return w
}

func WithStdin(ctx context.Context, r io.Reader) context.Context {
	return context.WithValue(ctx, stdinKey{}, r)
}

// Stdin returns the reader installed in ctx. Without one it returns os.Stdin when data is piped
// into the process, and nil when stdin is an interactive terminal.
func Stdin(ctx context.Context) io.Reader {
	if r, ok := ctx.Value(stdinKey{}).(io.Reader); ok {
		return r
	}
	if IsTerminal(os.Stdin) {
		return nil
	}
	return os.Stdin
}

// IsTerminal reports whether value is a file attached to a terminal. Buffers and pipes are not.
func IsTerminal(value any) bool {
	file, ok := value.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(file.Fd()))
}
