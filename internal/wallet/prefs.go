package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"solio-donations/internal/domain"
)

// PreferenceStore remembers the last provider the user connected with.
// Only the provider name is ever stored.
type PreferenceStore interface {
	Load() (domain.ProviderName, error)
	Save(name domain.ProviderName) error
	Clear() error
}

type preferenceFile struct {
	WalletProvider domain.ProviderName `json:"walletProvider"`
}

// FilePreferences keeps the preference in a small JSON file.
type FilePreferences struct {
	path string
	mu   sync.Mutex
}

// NewFilePreferences stores the preference at path.
func NewFilePreferences(path string) *FilePreferences {
	return &FilePreferences{path: path}
}

// Load returns "" when nothing is stored.
func (f *FilePreferences) Load() (domain.ProviderName, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read wallet preference: %w", err)
	}
	var pf preferenceFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return "", fmt.Errorf("decode wallet preference: %w", err)
	}
	return pf.WalletProvider, nil
}

// Save writes name atomically.
func (f *FilePreferences) Save(name domain.ProviderName) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := json.Marshal(preferenceFile{WalletProvider: name})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create preference dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write wallet preference: %w", err)
	}
	return os.Rename(tmp, f.path)
}

// Clear removes the file.
func (f *FilePreferences) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear wallet preference: %w", err)
	}
	return nil
}

// MemoryPreferences is a PreferenceStore for tests.
type MemoryPreferences struct {
	mu   sync.Mutex
	name domain.ProviderName
}

func (m *MemoryPreferences) Load() (domain.ProviderName, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name, nil
}

func (m *MemoryPreferences) Save(name domain.ProviderName) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return nil
}

func (m *MemoryPreferences) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = ""
	return nil
}
