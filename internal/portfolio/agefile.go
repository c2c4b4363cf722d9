package portfolio

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// AgeFile persists a symbol -> days-held map across restarts as a flat
// key=value text file. Used by strategies that age positions out.
type AgeFile struct {
	path string
}

func NewAgeFile(path string) *AgeFile {
	return &AgeFile{path: path}
}

// Load reads the age map. A missing file yields an empty map.
func (a *AgeFile) Load() (map[string]int, error) {
	ages := map[string]int{}
	data, err := os.ReadFile(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ages, nil
		}
		return nil, fmt.Errorf("read age file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			continue
		}
		ages[strings.TrimSpace(key)] = n
	}
	return ages, nil
}

// Save writes the age map atomically via temp file + rename.
func (a *AgeFile) Save(ages map[string]int) error {
	keys := make([]string, 0, len(ages))
	for k := range ages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%d\n", k, ages[k])
	}

	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write age file: %w", err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename age file: %w", err)
	}
	return nil
}
