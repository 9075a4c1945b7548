package env

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LoadFromDir loads dir/.env.
func LoadFromDir(dir string) ([]string, error) {
	return Load(filepath.Join(dir, ".env"))
}

// Load sets every variable in the file at path that is not already present in
// the process environment and returns the keys it set. A missing file is not
// an error.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	vars, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	var set []string
	for _, kv := range vars {
		if _, exists := os.LookupEnv(kv[0]); exists {
			continue
		}
		if err := os.Setenv(kv[0], kv[1]); err != nil {
			return set, err
		}
		set = append(set, kv[0])
	}
	return set, nil
}

// Parse reads KEY=VALUE lines in file order. Blank lines, comments and lines
// without '=' are skipped; an optional "export " prefix is dropped.
func Parse(r io.Reader) ([][2]string, error) {
	var out [][2]string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out = append(out, [2]string{key, unquote(strings.TrimSpace(val))})
	}
	return out, scanner.Err()
}

func unquote(val string) string {
	if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') {
		// anything after the closing quote, such as a comment, is dropped
		if end := strings.IndexByte(val[1:], val[0]); end >= 0 {
			return val[1 : end+1]
		}
	}
	// unquoted values may carry a trailing comment
	if i := strings.Index(val, " #"); i >= 0 {
		return strings.TrimSpace(val[:i])
	}
	return val
}
