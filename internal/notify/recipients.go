package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// RecipientStore persists registered chat ids as a sorted JSON array.
type RecipientStore struct {
	mu   sync.Mutex
	path string
}

// NewRecipientStore returns a store backed by the file at path. The file is
// created on the first Add.
func NewRecipientStore(path string) *RecipientStore {
	return &RecipientStore{path: path}
}

// Path returns the backing file path.
func (s *RecipientStore) Path() string { return s.path }

// List returns the stored chat ids. A missing file yields an empty list.
func (s *RecipientStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list()
}

func (s *RecipientStore) list() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notify: read recipients: %w", err)
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		var id string
		switch t := v.(type) {
		case string:
			id = t
		case float64:
			id = fmt.Sprintf("%.0f", t)
		default:
			continue
		}
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Add stores chatID. Blank ids are ignored and duplicates collapse.
func (s *RecipientStore) Add(chatID string) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.list()
	if err != nil {
		return err
	}
	ids = append(ids, chatID)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("notify: encode recipients: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("notify: create recipient dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".recipients-*")
	if err != nil {
		return fmt.Errorf("notify: write recipients: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("notify: write recipients: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("notify: write recipients: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("notify: write recipients: %w", err)
	}
	return nil
}
