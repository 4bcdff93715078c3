package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"trackstore/internal/application"
	"trackstore/internal/domain"
	"trackstore/internal/infrastructure/logx"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Server struct {
	svc  *application.AccountService
	ping func(ctx context.Context) error
	log  *zap.Logger
}

func NewServer(svc *application.AccountService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{svc: svc, log: log}
}

// SetReadyCheck installs the probe behind /readyz.
func (s *Server) SetReadyCheck(fn func(ctx context.Context) error) { s.ping = fn }

type accountResponse struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Balance   int64     `json:"balance"`
	Frozen    bool      `json:"frozen"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAccountResponse(a domain.Account) accountResponse {
	return accountResponse{ID: a.ID, Owner: a.Owner, Balance: a.Balance, Frozen: a.Frozen, Version: a.Version, UpdatedAt: a.UpdatedAt}
}

type transferResponse struct {
	ID        string    `json:"id"`
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner          string `json:"owner"`
		InitialBalance int64  `json:"initial_balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	acct, err := s.svc.CreateAccount(r.Context(), body.Owner, body.InitialBalance)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(acct))
}

func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.svc.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

func (s *Server) RenameAccount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner string `json:"owner"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	acct, err := s.svc.RenameAccount(r.Context(), chi.URLParam(r, "id"), body.Owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

func (s *Server) FreezeAccount(w http.ResponseWriter, r *http.Request) {
	s.setFrozen(w, r, true)
}

func (s *Server) UnfreezeAccount(w http.ResponseWriter, r *http.Request) {
	s.setFrozen(w, r, false)
}

func (s *Server) setFrozen(w http.ResponseWriter, r *http.Request, frozen bool) {
	acct, err := s.svc.SetFrozen(r.Context(), chi.URLParam(r, "id"), frozen)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

func (s *Server) CloseAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.CloseAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FromID string `json:"from_id"`
		ToID   string `json:"to_id"`
		Amount int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.FromID == "" || body.ToID == "" {
		writeError(w, http.StatusBadRequest, "from_id and to_id are required")
		return
	}
	var idem *string
	if key := r.Header.Get("X-Idempotency-Key"); key != "" {
		idem = &key
	}
	tr, err := s.svc.Transfer(r.Context(), body.FromID, body.ToID, body.Amount, idem)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transferResponse{ID: tr.ID, FromID: tr.FromID, ToID: tr.ToID, Amount: tr.Amount, CreatedAt: tr.CreatedAt})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logx.WithFields(r.Context(), s.log).Error("request_failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var exhausted *application.RetriesExhaustedError
	switch {
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrBadRequest),
		errors.Is(err, domain.ErrInvalidOwner),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSameAccount):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrConflict),
		errors.Is(err, application.ErrDuplicateRequest),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrAccountFrozen),
		errors.Is(err, domain.ErrAccountNotEmpty),
		errors.Is(err, domain.ErrBalanceOverflow),
		errors.As(err, &exhausted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Code: status, Message: msg})
}
