package codes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"provisiond/models"
)

var (
	ErrStorageDirRequired = errors.New("storage directory not provided")
	ErrCodeNotFound       = errors.New("confirmation code not found or not valid for school")
	ErrCodeNotReserved    = errors.New("confirmation code is not reserved")
)

// InsertItem describes one confirmation code to register. An empty Code is
// replaced with a generated value, an empty School with the wildcard.
type InsertItem struct {
	Code   string `json:"code"`
	School string `json:"school"`
}

type entry struct {
	models.ConfirmationCode

	// reserved marks the entry as claimed by an in-flight provisioning
	// workflow. Not persisted: a restart drops all reservations.
	reserved bool
}

// Service is the registry of confirmation codes. Entries are held in
// insertion order and persisted to a JSON file; used entries are never
// deleted so the file doubles as an audit trail.
type Service struct {
	mu      sync.Mutex
	path    string
	entries []entry
}

// NewService creates a code registry storing data inside the provided directory.
func NewService(storageDir string) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create codes dir: %w", err)
	}

	svc := &Service{
		path: filepath.Join(storageDir, "codes.json"),
	}

	if err := svc.load(); err != nil {
		return nil, err
	}

	return svc, nil
}

// Verify reports whether an unused code matching the school (exactly or via
// the wildcard) exists. Read-only; it does not claim the code.
func (s *Service) Verify(code, school string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.findLocked(code, school) >= 0
}

// Reserve claims the first unused entry matching code and school for an
// in-flight workflow. A second caller racing on the same entry gets
// ErrCodeNotFound until the reservation is released or consumed. The used
// flag is untouched; Reserve is a check, not a commit.
func (s *Service) Reserve(code, school string) (models.ConfirmationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(code, school)
	if i < 0 {
		return models.ConfirmationCode{}, ErrCodeNotFound
	}

	s.entries[i].reserved = true
	return s.entries[i].ConfirmationCode, nil
}

// Release drops the reservation on a code after a failed workflow, leaving it
// valid for the next attempt.
func (s *Service) Release(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].Code == code && s.entries[i].reserved && !s.entries[i].Used {
			s.entries[i].reserved = false
			return
		}
	}
}

// Consume marks a reserved code as used. Must only be called after the remote
// workflow fully succeeded; the used flag transitions exactly once.
func (s *Service) Consume(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].Code == code && s.entries[i].reserved && !s.entries[i].Used {
			s.entries[i].Used = true
			s.entries[i].reserved = false
			if err := s.saveLocked(); err != nil {
				s.entries[i].Used = false
				s.entries[i].reserved = true
				return err
			}
			return nil
		}
	}

	return ErrCodeNotReserved
}

// BulkInsert appends new entries and returns them. Duplicate code values are
// accepted; lookups match the oldest entry first.
func (s *Service) BulkInsert(items []InsertItem) ([]models.ConfirmationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	created := make([]models.ConfirmationCode, 0, len(items))
	for _, item := range items {
		code := strings.TrimSpace(item.Code)
		if code == "" {
			code = uuid.NewString()
		}
		school := strings.TrimSpace(item.School)
		if school == "" {
			school = models.SchoolWildcard
		}
		created = append(created, models.ConfirmationCode{
			Code:      code,
			School:    school,
			CreatedAt: now,
		})
	}

	for _, c := range created {
		s.entries = append(s.entries, entry{ConfirmationCode: c})
	}

	if err := s.saveLocked(); err != nil {
		s.entries = s.entries[:len(s.entries)-len(created)]
		return nil, err
	}

	return created, nil
}

// List returns a snapshot of all entries, used ones included, in insertion order.
func (s *Service) List() []models.ConfirmationCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]models.ConfirmationCode, 0, len(s.entries))
	for i := range s.entries {
		list = append(list, s.entries[i].ConfirmationCode)
	}
	return list
}

// findLocked returns the index of the first unused, unreserved entry matching
// code and school, or -1.
func (s *Service) findLocked(code, school string) int {
	for i := range s.entries {
		if s.entries[i].Code == code && !s.entries[i].reserved && s.entries[i].Matches(school) {
			return i
		}
	}
	return -1
}

func (s *Service) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open codes file: %w", err)
	}
	defer file.Close()

	var stored []models.ConfirmationCode
	if err := json.NewDecoder(file).Decode(&stored); err != nil {
		return fmt.Errorf("decode codes: %w", err)
	}

	s.entries = make([]entry, 0, len(stored))
	for _, c := range stored {
		if strings.TrimSpace(c.Code) == "" {
			continue
		}
		s.entries = append(s.entries, entry{ConfirmationCode: c})
	}

	return nil
}

func (s *Service) saveLocked() error {
	stored := make([]models.ConfirmationCode, 0, len(s.entries))
	for i := range s.entries {
		stored = append(stored, s.entries[i].ConfirmationCode)
	}

	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create codes temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stored); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode codes: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync codes: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close codes temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace codes file: %w", err)
	}

	return nil
}
