// Package repolist reads the repositories to poll from a plain text file.
package repolist

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/config"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoListSource = (*File)(nil)

// File implements driven.RepoListSource. The file holds one owner/name per
// line; blank lines and lines starting with # are ignored. It is re-read on
// every call so edits take effect on the next cycle.
type File struct {
	path string
}

// NewFile creates a File reading path.
func NewFile(path string) *File {
	return &File{path: path}
}

// List returns the repositories in file order. A missing file wraps
// config.ErrConfiguration.
func (f *File) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: repository list %s not found", config.ErrConfiguration, f.path)
		}
		return nil, fmt.Errorf("open repository list: %w", err)
	}
	defer file.Close()

	var repos []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		owner, name, ok := strings.Cut(line, "/")
		if !ok || owner == "" || name == "" || strings.ContainsAny(name, "/ \t") {
			slog.Warn("ignoring malformed repository entry", "file", f.path, "line", lineNo, "entry", line)
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		repos = append(repos, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read repository list: %w", err)
	}

	return repos, nil
}
