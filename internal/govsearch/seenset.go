package govsearch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// SeenSet is the durable record of fingerprints already emitted for one
// source+query scope. It is loaded at crawl start, mutated in memory, and
// rewritten to disk in full at crawl end. A single run owns its seen-file
// exclusively; the mutex covers concurrent in-process callers.
type SeenSet struct {
	mu  sync.Mutex
	fps map[string]struct{}
}

// LoadSeenSet reads the seen-file at path. A missing file yields an empty
// set and no error; a read error also yields an empty set so the crawl can
// proceed (the caller should log it).
func LoadSeenSet(path string) (*SeenSet, error) {
	s := &SeenSet{fps: make(map[string]struct{})}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("open seen-file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fp := strings.TrimSpace(scanner.Text())
		if fp != "" {
			s.fps[fp] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return s, fmt.Errorf("read seen-file %s: %w", path, err)
	}
	return s, nil
}

// Contains reports whether fp was already emitted.
func (s *SeenSet) Contains(fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fps[fp]
	return ok
}

// Add marks fp as emitted.
func (s *SeenSet) Add(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fps[fp] = struct{}{}
}

// Len returns the number of fingerprints in the set.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fps)
}

// Rewrite persists the full set to path, sorted, one fingerprint per line.
// The write goes through a temp file and rename so an interrupted rewrite
// never truncates the previous seen-file.
func (s *SeenSet) Rewrite(path string) error {
	s.mu.Lock()
	fps := make([]string, 0, len(s.fps))
	for fp := range s.fps {
		fps = append(fps, fp)
	}
	s.mu.Unlock()
	sort.Strings(fps)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create seen dir %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	var b strings.Builder
	for _, fp := range fps {
		b.WriteString(fp)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(tmp, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write seen-file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace seen-file %s: %w", path, err)
	}
	return nil
}
