// Package must handles startup failures that leave nothing to recover.
package must

import (
	"log/slog"
	"os"
)

var exit = os.Exit

// Must returns r, or logs msg with err and exits when err is set.
func Must[T any](r T, err error) func(msg string, args ...any) T {
	return func(msg string, args ...any) T {
		if err != nil {
			slog.Error(msg, append([]any{slog.String("err", err.Error())}, args...)...)
			exit(1)
		}
		return r
	}
}
