package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"provisiond/models"
)

var (
	ErrStorageDirRequired = errors.New("storage directory not provided")
	ErrUserIDRequired     = errors.New("user id is required")
	ErrAccountExists      = errors.New("account already recorded for user id")
)

// Service is the ledger of provisioned accounts, keyed by the directory's
// user id. Entries are only ever appended or updated, never deleted.
type Service struct {
	mu       sync.Mutex
	path     string
	accounts map[string]models.Account
}

// NewService creates an account ledger storing data inside the provided directory.
func NewService(storageDir string) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create roster dir: %w", err)
	}

	svc := &Service{
		path:     filepath.Join(storageDir, "accounts.json"),
		accounts: make(map[string]models.Account),
	}

	if err := svc.load(); err != nil {
		return nil, err
	}

	return svc, nil
}

// Append records a freshly provisioned account. The user id is assigned by the
// directory and must not already be present.
func (s *Service) Append(account models.Account) error {
	if strings.TrimSpace(account.UserID) == "" {
		return ErrUserIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.UserID]; ok {
		return ErrAccountExists
	}

	s.accounts[account.UserID] = account

	if err := s.saveLocked(); err != nil {
		delete(s.accounts, account.UserID)
		return err
	}

	return nil
}

// Update mutates the display name and license of the entry matching userID.
// It reports false without error when no entry matches; the ledger tracks
// only accounts this service provisioned, so misses are expected.
func (s *Service) Update(userID, displayName, license string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return false, nil
	}

	account.DisplayName = displayName
	account.License = license
	s.accounts[userID] = account

	return true, s.saveLocked()
}

// Get returns the account recorded for userID if present.
func (s *Service) Get(userID string) (models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	return account, ok
}

// List returns all recorded accounts sorted by creation time.
func (s *Service) List() []models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		list = append(list, a)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	return list
}

func (s *Service) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open accounts file: %w", err)
	}
	defer file.Close()

	var stored []models.Account
	if err := json.NewDecoder(file).Decode(&stored); err != nil {
		return fmt.Errorf("decode accounts: %w", err)
	}

	s.accounts = make(map[string]models.Account, len(stored))
	for _, a := range stored {
		if strings.TrimSpace(a.UserID) == "" {
			continue
		}
		s.accounts[a.UserID] = a
	}

	return nil
}

func (s *Service) saveLocked() error {
	stored := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		stored = append(stored, a)
	}

	sort.Slice(stored, func(i, j int) bool {
		return stored[i].CreatedAt.Before(stored[j].CreatedAt)
	})

	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create accounts temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stored); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode accounts: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync accounts: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close accounts temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace accounts file: %w", err)
	}

	return nil
}
