package listing

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tmdbsync/internal/services"
)

// ReadLines returns the non-blank lines of path, skipping "#" comments.
func ReadLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "listing", "read", path, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "listing", "read", path, err)
	}
	return lines, nil
}

// ReadIDs reads one numeric TMDB id per line.
func ReadIDs(path string) ([]int, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(lines))
	for i, line := range lines {
		id, err := strconv.Atoi(line)
		if err != nil || id <= 0 {
			return nil, services.Wrap(services.ErrValidation, "listing", "read ids",
				fmt.Sprintf("%s: entry %d %q is not a positive id", path, i+1, line), nil)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
