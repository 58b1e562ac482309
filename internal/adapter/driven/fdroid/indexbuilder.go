package fdroid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.IndexBuilder = (*IndexBuilder)(nil)

// maxOutputInError bounds how much tool output is carried in an error.
const maxOutputInError = 2048

// IndexBuilder runs the F-Droid index tool in the build directory.
type IndexBuilder struct {
	dir     string
	command []string
	timeout time.Duration
	goos    string
}

// NewIndexBuilder creates an IndexBuilder that runs command in dir, killing it
// after timeout.
func NewIndexBuilder(dir string, command []string, timeout time.Duration) *IndexBuilder {
	return &IndexBuilder{
		dir:     dir,
		command: command,
		timeout: timeout,
		goos:    runtime.GOOS,
	}
}

// Rebuild regenerates the repository index. The tool is unavailable on
// Windows, where Rebuild only logs the manual steps and succeeds.
func (b *IndexBuilder) Rebuild(ctx context.Context) error {
	cmdline := strings.Join(b.command, " ")

	if b.goos == "windows" {
		slog.Warn("index build is not supported on windows, run it manually",
			"dir", b.dir,
			"command", cmdline,
		)
		return nil
	}

	if len(b.command) == 0 {
		return fmt.Errorf("%w: no index command configured", driven.ErrBuild)
	}

	info, err := os.Stat(b.dir)
	if err != nil {
		return fmt.Errorf("%w: build directory: %w", driven.ErrBuild, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", driven.ErrBuild, b.dir)
	}

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.command[0], b.command[1:]...)
	cmd.Dir = b.dir
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s timed out after %s: %s", driven.ErrBuild, cmdline, b.timeout, tail(output))
		}
		return fmt.Errorf("%w: %s: %w: %s", driven.ErrBuild, cmdline, err, tail(output))
	}

	slog.Info("index rebuilt",
		"command", cmdline,
		"dir", b.dir,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	slog.Debug("index tool output", "output", string(output))

	return nil
}

func tail(output []byte) string {
	s := strings.TrimSpace(string(output))
	if len(s) > maxOutputInError {
		s = "..." + s[len(s)-maxOutputInError:]
	}
	return s
}
