package handlers

import (
	"encoding/json"
	"net/http"

	"provisiond/services/codes"
)

// CodesHandler handles confirmation code endpoints.
type CodesHandler struct {
	codes *codes.Service
}

// NewCodesHandler creates a new codes handler.
func NewCodesHandler(codesSvc *codes.Service) *CodesHandler {
	return &CodesHandler{codes: codesSvc}
}

// VerifyCodeRequest represents the verify-code request body.
type VerifyCodeRequest struct {
	Code   string `json:"code"`
	School string `json:"school"`
}

// GenerateCodesRequest represents the generate-codes request body.
type GenerateCodesRequest struct {
	Codes []codes.InsertItem `json:"codes"`
}

// VerifyCode reports whether a code is valid for the given school. Invalid
// codes answer 200 with valid=false rather than an error status; the caller
// is a signup form probing before submission.
func (h *CodesHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if h.codes.Verify(req.Code, req.School) {
		json.NewEncoder(w).Encode(map[string]any{"valid": true})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"valid": false,
		"error": "confirmation code is invalid or does not match the school",
	})
}

// GenerateCodes registers a batch of confirmation codes (admin only).
func (h *CodesHandler) GenerateCodes(w http.ResponseWriter, r *http.Request) {
	var req GenerateCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	created, err := h.codes.BulkInsert(req.Codes)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message": "codes generated",
		"codes":   created,
	})
}

// ListCodes returns every registered code, used ones included (admin only).
func (h *CodesHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.codes.List())
}

// Options handles CORS preflight requests.
func (h *CodesHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
