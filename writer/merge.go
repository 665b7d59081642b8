package writer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"congressflow/logger"
	"congressflow/models"
)

// SortMode selects how merged lines are ordered on disk.
type SortMode int

const (
	// SortByDate orders by the parsed leading date field, lexically on
	// the full line within one date.
	SortByDate SortMode = iota
	// SortLexical orders by plain string comparison.
	SortLexical
)

// MergeAppend folds new lines into the CSV file at path. Existing lines
// are read back, the union is deduplicated and sorted, and the result
// replaces the file atomically. Running the same merge twice yields the
// same file.
func MergeAppend(path string, lines []string, mode SortMode) error {
	merged := make(map[string]struct{}, len(lines))

	existing, err := readLines(path)
	if err != nil {
		return err
	}
	for _, line := range existing {
		merged[line] = struct{}{}
	}
	for _, line := range lines {
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		merged[line] = struct{}{}
	}

	out := make([]string, 0, len(merged))
	for line := range merged {
		out = append(out, line)
	}
	sortLines(out, mode)

	if err := writeAtomic(path, out); err != nil {
		return err
	}
	logger.IncrementMerge()
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

func sortLines(lines []string, mode SortMode) {
	if mode == SortLexical {
		sort.Strings(lines)
		return
	}
	sort.Slice(lines, func(i, j int) bool {
		di, dj := leadingDate(lines[i]), leadingDate(lines[j])
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return lines[i] < lines[j]
	})
}

// leadingDate parses the first CSV field as a date key. Unparseable
// leads sort first so they surface at the top of the file.
func leadingDate(line string) time.Time {
	field := line
	if i := strings.IndexByte(line, ','); i >= 0 {
		field = line[:i]
	}
	d, err := time.Parse(models.DateKeyFormat, field)
	if err != nil {
		return time.Time{}
	}
	return d
}

// writeAtomic writes lines to a sibling temp file and renames it over
// path, so readers never observe a half-written file.
func writeAtomic(path string, lines []string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
