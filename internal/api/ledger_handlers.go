package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/pkg/httputil"
	"github.com/ignite/loyalty-core/internal/service/ledger"
)

type ledgerRequest struct {
	ClientID   uuid.UUID  `json:"client_id"`
	ProgramID  uuid.UUID  `json:"program_id"`
	SaleID     *uuid.UUID `json:"sale_id,omitempty"`
	Amount     int64      `json:"amount"`
	ExpiryDays int        `json:"expiry_days,omitempty"`
}

// handleAccumulate credits cashback.
//
//	POST /api/ledger/accumulate
func (s *Server) handleAccumulate(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.ClientID == uuid.Nil || req.ProgramID == uuid.Nil {
		httputil.BadRequest(w, "client_id and program_id are required")
		return
	}

	tx, err := s.ledger.Accumulate(r.Context(), req.ClientID, req.ProgramID, req.SaleID, req.Amount, req.ExpiryDays)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	httputil.Created(w, tx)
}

// handleRedeem debits cashback.
//
//	POST /api/ledger/redeem
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req ledgerRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.ClientID == uuid.Nil || req.ProgramID == uuid.Nil {
		httputil.BadRequest(w, "client_id and program_id are required")
		return
	}

	tx, err := s.ledger.Redeem(r.Context(), req.ClientID, req.ProgramID, req.SaleID, req.Amount)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	httputil.Created(w, tx)
}

func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		httputil.Unprocessable(w, err.Error(), "insufficient_balance")
	case errors.Is(err, ledger.ErrConcurrentConflict):
		httputil.Conflict(w, "balance is being updated concurrently, retry")
	case errors.Is(err, ledger.ErrNotFound):
		httputil.NotFound(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// handleBalance reads one client/program balance.
//
//	GET /api/balances/{clientID}/{programID}
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	clientID, programID, ok := pathPair(w, r)
	if !ok {
		return
	}
	b, err := s.ledger.Balance(r.Context(), clientID, programID)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	httputil.OK(w, b)
}

// handleTransactions lists the audit trail, newest first.
//
//	GET /api/ledger/{clientID}/{programID}/transactions?limit=N
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	clientID, programID, ok := pathPair(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := s.ledger.Transactions(r.Context(), clientID, programID, limit)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	httputil.OK(w, txs)
}

func pathPair(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	clientID, err := uuid.Parse(chi.URLParam(r, "clientID"))
	if err != nil {
		httputil.BadRequest(w, "invalid client id")
		return uuid.Nil, uuid.Nil, false
	}
	programID, err := uuid.Parse(chi.URLParam(r, "programID"))
	if err != nil {
		httputil.BadRequest(w, "invalid program id")
		return uuid.Nil, uuid.Nil, false
	}
	return clientID, programID, true
}
