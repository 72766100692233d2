package provisioning

import (
	"context"
	"errors"
	"log"
	"time"

	"provisiond/models"
	"provisiond/services/codes"
	"provisiond/services/graph"
	"provisiond/services/roster"
)

// ErrInvalidCode rejects a create request whose confirmation code is absent,
// already used, or scoped to a different school. No directory calls have been
// made when this is returned.
var ErrInvalidCode = errors.New("confirmation code is invalid or already used")

// Directory is the surface of the graph client the workflows drive. Each
// workflow acquires one token and passes it to the calls it issues; no call is
// retried.
type Directory interface {
	AcquireToken(ctx context.Context) (string, error)
	CreateUser(ctx context.Context, token string, profile graph.UserProfile) (string, error)
	PatchUser(ctx context.Context, token, userID string, profile graph.UserProfile) error
	AssignLicense(ctx context.Context, token, userID, skuID string) error
	ReplaceLicense(ctx context.Context, token, userID, skuID string) error
}

// CreateTeacherRequest is the inbound payload for the create workflow.
// An empty Password is replaced with a generated temporary one.
type CreateTeacherRequest struct {
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	DisplayName      string `json:"displayName"`
	Username         string `json:"username"`
	Domain           string `json:"domain"`
	Password         string `json:"password"`
	School           string `json:"school"`
	License          string `json:"license"`
	JobTitle         string `json:"jobTitle"`
	Department       string `json:"department"`
	City             string `json:"city"`
	State            string `json:"state"`
	PostalCode       string `json:"postalCode"`
	Country          string `json:"country"`
	ConfirmationCode string `json:"confirmationCode"`
}

// UpdateTeacherRequest is the inbound payload for the update workflow.
// Updates are not gated by a confirmation code; any caller holding a user id
// may request one. That asymmetry with creation is intentional.
type UpdateTeacherRequest struct {
	UserID      string `json:"userId"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DisplayName string `json:"displayName"`
	School      string `json:"school"`
	License     string `json:"license"`
	JobTitle    string `json:"jobTitle"`
	Department  string `json:"department"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postalCode"`
	Country     string `json:"country"`
}

// Service orchestrates the provisioning workflows across the code registry,
// the directory, and the account ledger. It holds no state of its own.
type Service struct {
	codes     *codes.Service
	roster    *roster.Service
	directory Directory
}

// NewService creates the provisioning orchestrator.
func NewService(codesSvc *codes.Service, rosterSvc *roster.Service, directory Directory) *Service {
	return &Service{
		codes:     codesSvc,
		roster:    rosterSvc,
		directory: directory,
	}
}

// CreateTeacher runs the create workflow: reserve the confirmation code,
// drive token, user creation and license assignment against the directory,
// then consume the code and record the account. Any directory failure aborts
// the workflow, releases the code and records nothing locally; directory
// state already created is left as is.
func (s *Service) CreateTeacher(ctx context.Context, req CreateTeacherRequest) (string, error) {
	entry, err := s.codes.Reserve(req.ConfirmationCode, req.School)
	if err != nil {
		return "", ErrInvalidCode
	}

	userID, err := s.provisionUser(ctx, req)
	if err != nil {
		s.codes.Release(entry.Code)
		return "", err
	}

	// The directory side is committed; local bookkeeping failures past this
	// point are logged, not surfaced, since the account exists either way.
	if err := s.codes.Consume(entry.Code); err != nil {
		log.Printf("provisioning: user %s created but code %q not consumed: %v", userID, entry.Code, err)
	}

	account := models.Account{
		UserID:            userID,
		DisplayName:       req.DisplayName,
		UserPrincipalName: req.Username + req.Domain,
		ConfirmationCode:  req.ConfirmationCode,
		License:           req.License,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.roster.Append(account); err != nil {
		log.Printf("provisioning: user %s created but not recorded in ledger: %v", userID, err)
	}

	return userID, nil
}

// provisionUser drives the directory calls of the create workflow.
func (s *Service) provisionUser(ctx context.Context, req CreateTeacherRequest) (string, error) {
	token, err := s.directory.AcquireToken(ctx)
	if err != nil {
		return "", err
	}

	profile := profileFromCreate(req)
	if profile.Password == "" {
		pw, err := graph.GeneratePassword()
		if err != nil {
			return "", err
		}
		profile.Password = pw
	}

	userID, err := s.directory.CreateUser(ctx, token, profile)
	if err != nil {
		return "", err
	}

	if skuID, ok := models.LicenseSKU(req.License); ok {
		if err := s.directory.AssignLicense(ctx, token, userID, skuID); err != nil {
			// No compensation: the user exists in the directory without a
			// license and without a local record.
			log.Printf("provisioning: user %s created but license %q not assigned: %v", userID, req.License, err)
			return "", err
		}
	}

	return userID, nil
}

// UpdateTeacher runs the update workflow: patch the user's mutable attributes
// and, when a recognized license key is supplied, swap the assigned license.
// The ledger entry is updated when one matches; a missing entry is logged but
// does not fail the workflow, since the directory update already happened.
func (s *Service) UpdateTeacher(ctx context.Context, req UpdateTeacherRequest) error {
	token, err := s.directory.AcquireToken(ctx)
	if err != nil {
		return err
	}

	if err := s.directory.PatchUser(ctx, token, req.UserID, profileFromUpdate(req)); err != nil {
		return err
	}

	if skuID, ok := models.LicenseSKU(req.License); ok {
		if err := s.directory.ReplaceLicense(ctx, token, req.UserID, skuID); err != nil {
			return err
		}
	}

	found, err := s.roster.Update(req.UserID, req.DisplayName, req.License)
	if err != nil {
		log.Printf("provisioning: user %s updated but ledger write failed: %v", req.UserID, err)
	} else if !found {
		log.Printf("provisioning: user %s updated in directory but has no ledger entry", req.UserID)
	}

	return nil
}

func profileFromCreate(req CreateTeacherRequest) graph.UserProfile {
	return graph.UserProfile{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DisplayName: req.DisplayName,
		Username:    req.Username,
		Domain:      req.Domain,
		Password:    req.Password,
		School:      req.School,
		JobTitle:    req.JobTitle,
		Department:  req.Department,
		City:        req.City,
		State:       req.State,
		PostalCode:  req.PostalCode,
		Country:     req.Country,
	}
}

func profileFromUpdate(req UpdateTeacherRequest) graph.UserProfile {
	return graph.UserProfile{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DisplayName: req.DisplayName,
		School:      req.School,
		JobTitle:    req.JobTitle,
		Department:  req.Department,
		City:        req.City,
		State:       req.State,
		PostalCode:  req.PostalCode,
		Country:     req.Country,
	}
}
