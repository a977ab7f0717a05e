package corpus

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const localSnippetLimit = 1000

// Entry is one document of a local corpus together with its full content.
type Entry struct {
	Document Document `json:"source"`
	Content  string   `json:"content"`
}

// File is an uploaded file used to build a local corpus.
type File struct {
	Name         string    `json:"name"`
	RelativePath string    `json:"relativePath"`
	Content      string    `json:"content"`
	ModifiedAt   time.Time `json:"modifiedAt"`
}

// LocalStore is the session-owned, mutable corpus built from uploaded files.
// It is the only document store that accepts edits.
type LocalStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewLocalStore(entries []Entry) *LocalStore {
	copied := make([]Entry, len(entries))
	copy(copied, entries)
	for i := range copied {
		copied[i].Document.Origin = SourceLocal
	}
	return &LocalStore{entries: copied}
}

// LocalStoreFromFiles builds a store whose ids are "custom-<name>-<unix millis>".
func LocalStoreFromFiles(files []File) *LocalStore {
	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		docPath := filepath.ToSlash(f.RelativePath)
		if docPath == "" {
			docPath = f.Name
		}
		entries = append(entries, Entry{
			Document: Document{
				ID:          fmt.Sprintf("custom-%s-%d", f.Name, f.ModifiedAt.UnixMilli()),
				DisplayName: f.Name,
				Path:        docPath,
				Origin:      SourceLocal,
			},
			Content: f.Content,
		})
	}
	return NewLocalStore(entries)
}

func (s *LocalStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Search ranks documents by the number of case-insensitive occurrences of the
// query. Documents with no occurrence are dropped.
func (s *LocalStore) Search(query string) RankedList {
	if s == nil {
		return nil
	}
	needle := strings.ToLower(query)
	if needle == "" {
		return RankedList{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(RankedList, 0)
	for _, entry := range s.entries {
		count := strings.Count(strings.ToLower(entry.Content), needle)
		if count == 0 {
			continue
		}
		results = append(results, Result{
			Document: entry.Document,
			Snippet:  Clip(entry.Content, localSnippetLimit),
			Score:    float64(count),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// ListAll returns the distinct documents of the store.
func (s *LocalStore) ListAll() []Document {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]int, len(s.entries))
	docs := make([]Document, 0, len(s.entries))
	for _, entry := range s.entries {
		if idx, ok := seen[entry.Document.ID]; ok {
			docs[idx] = entry.Document
			continue
		}
		seen[entry.Document.ID] = len(docs)
		docs = append(docs, entry.Document)
	}
	return docs
}

// Content returns the trimmed content of a document.
func (s *LocalStore) Content(id string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if entry.Document.ID == id {
			return strings.TrimSpace(entry.Content), true
		}
	}
	return "", false
}

// Update replaces the content of a document. It reports false when the id is unknown.
func (s *LocalStore) Update(id, content string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.entries {
		if s.entries[i].Document.ID == id {
			s.entries[i].Content = content
			found = true
		}
	}
	return found
}

func (s *LocalStore) Entries() []Entry {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *LocalStore) MarshalJSON() ([]byte, error) {
	entries := s.Entries()
	if entries == nil {
		entries = []Entry{}
	}
	return json.Marshal(entries)
}

func (s *LocalStore) UnmarshalJSON(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode local corpus: %w", err)
	}
	for i := range entries {
		entries[i].Document.Origin = SourceLocal
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}
