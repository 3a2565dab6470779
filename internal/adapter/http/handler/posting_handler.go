package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/postings/internal/adapter/http/dto"
	"github.com/iho/postings/internal/domain"
	"github.com/iho/postings/internal/usecase"
)

// PostingHandler handles posting-related HTTP requests.
type PostingHandler struct {
	postingUC *usecase.PostingUseCase
}

// NewPostingHandler creates a new PostingHandler.
func NewPostingHandler(postingUC *usecase.PostingUseCase) *PostingHandler {
	return &PostingHandler{postingUC: postingUC}
}

// Submit submits a posting draft.
func (h *PostingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitPostingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.postingUC.Submit(r.Context(), req.ToDraft())
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to submit posting", err.Error())

		return
	}

	status := http.StatusCreated
	if result.AlreadyExisted {
		status = http.StatusOK
	}

	writeJSON(w, status, dto.SubmitFromResult(result))
}

// Lookup retrieves a posting by content hash.
func (h *PostingHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if hash == "" {
		writeError(w, http.StatusBadRequest, "missing content hash", "")
		return
	}

	posting, err := h.postingUC.Lookup(r.Context(), domain.ContentHash(hash))
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to look up posting", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, dto.PostingFromDomain(posting))
}

// Balance retrieves an account balance, optionally as of a point in time.
func (h *PostingHandler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account ID", "")
		return
	}

	asOf, err := parseTimeQuery(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid as_of", err.Error())
		return
	}

	balance, err := h.postingUC.Balance(r.Context(), accountID, asOf)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to get balance", err.Error())

		return
	}

	resp := dto.BalanceResponse{
		AccountID: accountID,
		Balance:   balance.String(),
	}
	if !asOf.IsZero() {
		resp.AsOf = &asOf
	}

	writeJSON(w, http.StatusOK, resp)
}

// Statement retrieves an account statement.
func (h *PostingHandler) Statement(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account ID", "")
		return
	}

	asOf, err := parseTimeQuery(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid as_of", err.Error())
		return
	}

	statement, err := h.postingUC.Statement(r.Context(), accountID, asOf)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to get statement", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, dto.StatementFromDomain(statement))
}
