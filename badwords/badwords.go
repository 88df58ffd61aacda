package badwords

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joy095/dispatch/logger"
)

//go:embed en.txt
var defaultList string

// Filter is a case-insensitive word-level blocklist safe for concurrent use.
type Filter struct {
	mu    sync.RWMutex
	words map[string]struct{}
}

// NewFilter builds a filter from the embedded default list.
func NewFilter() *Filter {
	f := &Filter{}
	f.replace(parse(defaultList))
	return f
}

// LoadFile replaces the list with the words in filename, one per line.
func (f *Filter) LoadFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read bad words file: %w", err)
	}
	words := parse(string(data))
	f.replace(words)
	logger.InfoLogger.Infof("Loaded %d bad words from %s", len(words), filename)
	return nil
}

func parse(data string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, line := range strings.Split(data, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			words[strings.ToLower(trimmed)] = struct{}{}
		}
	}
	return words
}

func (f *Filter) replace(words map[string]struct{}) {
	f.mu.Lock()
	f.words = words
	f.mu.Unlock()
}

// Contains reports whether text holds any listed word.
func (f *Filter) Contains(text string) bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, word := range words {
		if _, found := f.words[word]; found {
			logger.DebugLogger.Debugf("Bad word detected: %s", word)
			return true
		}
	}
	return false
}

// Add inserts a word into the list.
func (f *Filter) Add(badWord string) error {
	if strings.TrimSpace(badWord) == "" {
		return errors.New("bad word must not be empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.words == nil {
		f.words = make(map[string]struct{})
	}
	f.words[strings.ToLower(strings.TrimSpace(badWord))] = struct{}{}
	return nil
}

// Remove deletes a word, reporting whether it was present.
func (f *Filter) Remove(badWord string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	lower := strings.ToLower(badWord)
	if _, found := f.words[lower]; found {
		delete(f.words, lower)
		return true
	}
	return false
}

func (f *Filter) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.words)
}
