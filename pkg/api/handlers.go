package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"smartwallet/pkg/entities"
	"smartwallet/pkg/ledger"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func userID(r *http.Request) string {
	return mux.Vars(r)["userID"]
}

// moveRequest is the body of borrow and repay.
type moveRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// entityMoveRequest is the body of withdraw and contribution.
type entityMoveRequest struct {
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (s *Server) handleGetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.OpenAccounts(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleSyncAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.SyncAccounts(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var in ledger.TransactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	tx, err := s.ledger.RecordTransaction(r.Context(), userID(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q, err := parseTransactionQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	txs, err := s.ledger.ListTransactions(r.Context(), userID(r), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []*ledger.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func parseTransactionQuery(r *http.Request) (ledger.TransactionQuery, error) {
	values := r.URL.Query()
	var (
		q   ledger.TransactionQuery
		err error
	)

	if v := values.Get("account"); v != "" {
		if q.Account, err = ledger.ParseAccountCategory(v); err != nil {
			return q, err
		}
	}
	if v := values.Get("type"); v != "" {
		if q.Type, err = ledger.ParseDirection(v); err != nil {
			return q, err
		}
	}
	q.Category = values.Get("category")
	if v := values.Get("special_category"); v != "" {
		switch sc := ledger.SpecialCategory(v); sc {
		case ledger.SpecialTransfer, ledger.SpecialDebt, ledger.SpecialInvestment, ledger.SpecialGoal:
			q.SpecialCategory = sc
		default:
			return q, badRequest("unknown special_category %q", v)
		}
	}
	if q.From, err = parseDate(values.Get("from"), false); err != nil {
		return q, err
	}
	if q.To, err = parseDate(values.Get("to"), true); err != nil {
		return q, err
	}
	if v := values.Get("include_hidden"); v != "" {
		if q.IncludeHidden, err = strconv.ParseBool(v); err != nil {
			return q, badRequest("include_hidden: %v", err)
		}
	}
	if q.Limit, err = parseNonNegative(values.Get("limit"), "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = parseNonNegative(values.Get("offset"), "offset"); err != nil {
		return q, err
	}
	return q, nil
}

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates. A plain
// date used as an upper bound covers the whole day.
func parseDate(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, badRequest("invalid date %q", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parseNonNegative(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	transfer, err := s.ledger.BorrowFromMain(r.Context(), userID(r), req.Amount, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transfer)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	transfer, err := s.ledger.RepayToMain(r.Context(), userID(r), req.Amount, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transfer)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req entityMoveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	kind, err := ledger.ParseSpecialKind(req.EntityType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	transfer, err := s.ledger.WithdrawFromSpecial(r.Context(), userID(r), kind, req.EntityID, req.Amount, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transfer)
}

func (s *Server) handleTransferHistory(w http.ResponseWriter, r *http.Request) {
	transfers, err := s.ledger.GetTransferHistory(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if transfers == nil {
		transfers = []*ledger.Transfer{}
	}
	writeJSON(w, http.StatusOK, transfers)
}

func (s *Server) handleContribution(w http.ResponseWriter, r *http.Request) {
	var req entityMoveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	kind, err := ledger.ParseSpecialKind(req.EntityType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.ledger.ProcessSpecialContribution(r.Context(), userID(r), kind, req.EntityID, req.Amount, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	result, err := s.ledger.PerformMonthEndRollover(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateDebt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string          `json:"name"`
		CurrentBalance decimal.Decimal `json:"current_balance"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	debt, err := entities.NewDebt(userID(r), req.Name, req.CurrentBalance, time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.entities.CreateDebt(r.Context(), debt); err != nil {
		s.writeError(w, r, ledger.WrapStorage("create debt", err))
		return
	}
	writeJSON(w, http.StatusCreated, debt)
}

func (s *Server) handleListDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := s.entities.ListDebts(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, ledger.WrapStorage("list debts", err))
		return
	}
	if debts == nil {
		debts = []*entities.Debt{}
	}
	writeJSON(w, http.StatusOK, debts)
}

func (s *Server) handleGetDebt(w http.ResponseWriter, r *http.Request) {
	debt, err := s.entities.FindDebt(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, ledger.WrapStorage("find debt", err))
		return
	}
	if debt == nil {
		s.writeError(w, r, ledger.ErrEntityNotFound)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

func (s *Server) handleCreateInvestment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string          `json:"name"`
		CurrentValue decimal.Decimal `json:"current_value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	inv, err := entities.NewInvestment(userID(r), req.Name, req.CurrentValue, time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.entities.CreateInvestment(r.Context(), inv); err != nil {
		s.writeError(w, r, ledger.WrapStorage("create investment", err))
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleListInvestments(w http.ResponseWriter, r *http.Request) {
	investments, err := s.entities.ListInvestments(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, ledger.WrapStorage("list investments", err))
		return
	}
	if investments == nil {
		investments = []*entities.Investment{}
	}
	writeJSON(w, http.StatusOK, investments)
}

func (s *Server) handleGetInvestment(w http.ResponseWriter, r *http.Request) {
	inv, err := s.entities.FindInvestment(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, ledger.WrapStorage("find investment", err))
		return
	}
	if inv == nil {
		s.writeError(w, r, ledger.ErrEntityNotFound)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string          `json:"name"`
		TargetAmount  decimal.Decimal `json:"target_amount"`
		CurrentAmount decimal.Decimal `json:"current_amount"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	goal, err := entities.NewGoal(userID(r), req.Name, req.TargetAmount, req.CurrentAmount, time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.entities.CreateGoal(r.Context(), goal); err != nil {
		s.writeError(w, r, ledger.WrapStorage("create goal", err))
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.entities.ListGoals(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, ledger.WrapStorage("list goals", err))
		return
	}
	if goals == nil {
		goals = []*entities.Goal{}
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.entities.FindGoal(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, ledger.WrapStorage("find goal", err))
		return
	}
	if goal == nil {
		s.writeError(w, r, ledger.ErrEntityNotFound)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}
