package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"provisiond/services/provisioning"
	"provisiond/services/roster"
)

// TeachersHandler handles the teacher provisioning endpoints.
type TeachersHandler struct {
	provisioner *provisioning.Service
	roster      *roster.Service
}

// NewTeachersHandler creates a new teachers handler.
func NewTeachersHandler(provisioner *provisioning.Service, rosterSvc *roster.Service) *TeachersHandler {
	return &TeachersHandler{
		provisioner: provisioner,
		roster:      rosterSvc,
	}
}

// CreateTeacher provisions a new directory account gated by a confirmation
// code. Directory failures surface the provider's message verbatim.
func (h *TeachersHandler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req provisioning.CreateTeacherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	userID, err := h.provisioner.CreateTeacher(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, provisioning.ErrInvalidCode) {
			status = http.StatusBadRequest
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "account created",
		"userId":  userID,
	})
}

// UpdateTeacher patches an existing directory account and optionally swaps
// its license.
func (h *TeachersHandler) UpdateTeacher(w http.ResponseWriter, r *http.Request) {
	var req provisioning.UpdateTeacherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := h.provisioner.UpdateTeacher(r.Context(), req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "account updated"})
}

// ListAccounts returns the ledger of provisioned accounts (admin only).
func (h *TeachersHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.roster.List())
}

// Options handles CORS preflight requests.
func (h *TeachersHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
