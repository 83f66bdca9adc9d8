package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/billbatista/cuentas-claras/eventlogger"
	"github.com/billbatista/cuentas-claras/ledger"
	"github.com/billbatista/cuentas-claras/middleware"
	"github.com/billbatista/cuentas-claras/session"
	"github.com/billbatista/cuentas-claras/user"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// The fixed trust group. Adding a user means editing this roster and
// redeploying; there is no signup.
var roster = user.Roster{"Ivan", "Geral", "Michel", "Kimberly"}

const defaultDSN = "host=localhost port=5432 user=postgres password=postgres dbname=cuentas sslmode=disable"

// snapshotCache holds the latest full document delivered by the change
// feed. Reads recompute everything from it on demand; writes never touch it
// directly, they land in the store and come back through the feed.
type snapshotCache struct {
	mu   sync.RWMutex
	snap ledger.Snapshot
}

func (c *snapshotCache) set(s ledger.Snapshot) {
	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()
}

func (c *snapshotCache) get() ledger.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = defaultDSN
	}
	masterCode := os.Getenv("MASTER_CODE")
	if masterCode == "" {
		masterCode = "2025"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		printErrorAndExit("database connection", err)
	}
	err = db.Ping()
	if err != nil {
		printErrorAndExit("pinging database", err)
	}

	evtlogger := eventlogger.NewSqlEventLogger(db)
	worker := eventlogger.NewWorker(evtlogger, 100)
	worker.Start()
	defer worker.Shutdown()

	userRepo := user.NewRepository(db, roster, masterCode)
	sessionRepo := session.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db)

	cache := &snapshotCache{}
	feed := ledger.NewFeed(dsn, ledgerRepo, cache.set)
	if err := feed.Start(); err != nil {
		printErrorAndExit("starting ledger feed", err)
	}
	defer feed.Shutdown()

	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(middleware.AuthMiddleware(sessionRepo))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		evt := eventlogger.NewEvent(
			eventlogger.WithType("health_request"),
			eventlogger.WithData(map[string]string{
				"message":     "ok",
				"http_status": strconv.Itoa(http.StatusOK),
			}),
		)
		worker.Log(evt)
		w.Write([]byte("ok"))
	})

	router.Post("/user/login", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form data", http.StatusBadRequest)
			return
		}

		name := r.FormValue("name")
		pin := r.FormValue("pin")

		hasPIN, err := userRepo.HasPIN(ctx, name)
		if err != nil {
			if errors.Is(err, user.ErrUnknownUser) {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			slog.Error("failed to check pin", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		// First login creates the PIN; afterwards it is verified.
		created := false
		if !hasPIN {
			if err := userRepo.SetPIN(ctx, name, pin); err != nil {
				if errors.Is(err, user.ErrPINFormat) {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				slog.Error("failed to create pin", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			created = true
		} else if err := userRepo.VerifyPIN(ctx, name, pin); err != nil {
			if errors.Is(err, user.ErrInvalidPIN) || errors.Is(err, user.ErrNoPIN) {
				http.Error(w, "invalid name or pin", http.StatusUnauthorized)
				return
			}
			slog.Error("failed to verify pin", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		sess, err := sessionRepo.Create(ctx, name)
		if err != nil {
			slog.Error("failed to create session", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     session.CookieName,
			Value:    sess.Token,
			Path:     "/",
			Expires:  sess.ExpiresAt,
			HttpOnly: true,
			Secure:   false,
			SameSite: http.SameSiteLaxMode,
		})

		evt := eventlogger.NewEvent(
			eventlogger.WithType("user.logged_in"),
			eventlogger.WithActor(name),
			eventlogger.WithData(map[string]string{
				"session_id":  sess.ID.String(),
				"pin_created": strconv.FormatBool(created),
			}),
		)
		worker.Log(evt)

		respondJSON(w, http.StatusOK, map[string]any{
			"name":        name,
			"pin_created": created,
		})
	})

	router.Post("/user/pin/reset", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form data", http.StatusBadRequest)
			return
		}

		name := r.FormValue("name")
		err := userRepo.ResetPIN(ctx, name, r.FormValue("master_code"), r.FormValue("new_pin"))
		if err != nil {
			switch {
			case errors.Is(err, user.ErrBadMasterCode):
				http.Error(w, err.Error(), http.StatusForbidden)
			case errors.Is(err, user.ErrUnknownUser), errors.Is(err, user.ErrPINFormat):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				slog.Error("failed to reset pin", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		// Old sessions die with the old PIN.
		if err := sessionRepo.DeleteByUserName(ctx, name); err != nil {
			slog.Error("failed to delete sessions", "error", err)
		}

		evt := eventlogger.NewEvent(
			eventlogger.WithType("user.pin_reset"),
			eventlogger.WithActor(name),
		)
		worker.Log(evt)

		w.WriteHeader(http.StatusNoContent)
	})

	// Protected routes - require authentication
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth())

		r.Get("/api/summary", func(w http.ResponseWriter, r *http.Request) {
			viewer, _ := middleware.GetUserName(r.Context())
			snap := cache.get()

			balances := ledger.NetBalances(viewer, roster, snap.Transactions)
			total := ledger.Total(balances)

			rows := make([]summaryRow, 0, len(balances))
			for _, partner := range roster.Partners(viewer) {
				balance := balances[partner]
				if ledger.BelowThreshold(balance) {
					continue
				}
				rows = append(rows, summaryRow{
					Partner:  partner,
					Balance:  balance,
					OwesYou:  balance.IsPositive(),
					HasAlert: ledger.PendingAlert(viewer, partner, snap.Transactions),
				})
			}

			respondJSON(w, http.StatusOK, map[string]any{
				"rows":        rows,
				"total":       total.Abs(),
				"owed_to_you": total.Sign() >= 0,
			})
		})

		r.Get("/api/partners/{name}/history", func(w http.ResponseWriter, r *http.Request) {
			viewer, _ := middleware.GetUserName(r.Context())
			partner := chi.URLParam(r, "name")
			if !roster.Contains(partner) || partner == viewer {
				http.Error(w, "unknown partner", http.StatusNotFound)
				return
			}

			snap := cache.get()
			projection := ledger.ProjectHistory(viewer, partner, snap.Transactions)

			rows := make([]historyRow, 0, len(projection))
			for _, row := range projection {
				rows = append(rows, newHistoryRow(viewer, row))
			}
			respondJSON(w, http.StatusOK, map[string]any{
				"partner": partner,
				"balance": ledger.NetBalance(viewer, partner, snap.Transactions),
				"rows":    rows,
			})
		})

		r.Get("/api/partners/{name}/debts", func(w http.ResponseWriter, r *http.Request) {
			viewer, _ := middleware.GetUserName(r.Context())
			partner := chi.URLParam(r, "name")
			if !roster.Contains(partner) || partner == viewer {
				http.Error(w, "unknown partner", http.StatusNotFound)
				return
			}

			snap := cache.get()
			debts := ledger.OutstandingDebts(viewer, partner, snap.Transactions)

			rows := make([]debtRow, 0, len(debts))
			for _, d := range debts {
				rows = append(rows, debtRow{
					ID:        d.Loan.ID,
					Creator:   d.Loan.Creator,
					Memo:      d.Loan.Memo,
					Date:      d.Loan.CreatedDisplay,
					Original:  d.Loan.Amount,
					Remaining: d.Remaining,
				})
			}
			respondJSON(w, http.StatusOK, map[string]any{"debts": rows})
		})

		r.Post("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
			viewer, _ := middleware.GetUserName(r.Context())

			var req createTransactionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
			if !roster.Contains(req.Counterparty) {
				http.Error(w, "unknown counterparty", http.StatusBadRequest)
				return
			}

			snap := cache.get()
			now := time.Now()

			var record ledger.Transaction
			var err error
			switch req.Kind {
			case ledger.KindLoanGiven, ledger.KindLoanReceived:
				record, err = ledger.NewLoan(viewer, req.Counterparty, req.Kind, req.Amount, req.Memo, now)
			case ledger.KindRepayment:
				record, err = buildRepayment(r.Context(), viewer, req, snap.Transactions, ledgerRepo, now)
			default:
				http.Error(w, "unknown transaction kind", http.StatusBadRequest)
				return
			}
			if err != nil {
				switch {
				case errors.Is(err, ledger.ErrInvalidAmount),
					errors.Is(err, ledger.ErrSameParty),
					errors.Is(err, ledger.ErrInvalidKind),
					errors.Is(err, ledger.ErrBadDebtRef):
					http.Error(w, err.Error(), http.StatusBadRequest)
				default:
					slog.Error("failed to build transaction", "error", err)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
				return
			}

			if err := ledgerRepo.AppendOne(r.Context(), record); err != nil {
				slog.Error("failed to save transaction", "error", err)
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}

			evt := eventlogger.NewEvent(
				eventlogger.WithType("transaction.created"),
				eventlogger.WithActor(viewer),
				eventlogger.WithData(ledger.TransactionCreatedEvent{
					TransactionID: record.ID,
					Creator:       record.Creator,
					Counterparty:  record.Counterparty,
					Kind:          string(record.Kind),
					Amount:        record.Amount.String(),
					DebtRef:       record.DebtRef,
				}),
			)
			worker.Log(evt)

			respondJSON(w, http.StatusCreated, map[string]string{"id": record.ID})
		})

		r.Post("/api/transactions/{id}/request-deletion", func(w http.ResponseWriter, r *http.Request) {
			viewer, _ := middleware.GetUserName(r.Context())
			id := chi.URLParam(r, "id")

			// Writes are computed from a fresh read of the document, never
			// from the cached snapshot.
			snap, err := ledgerRepo.Load(r.Context())
			if err != nil {
				slog.Error("failed to load ledger", "error", err)
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}

			list, err := ledger.RequestDeletion(snap.Transactions, id, viewer)
			if err != nil {
				respondConsentError(w, err)
				return
			}

			if err := ledgerRepo.OverwriteAll(r.Context(), list, snap.Version); err != nil {
				respondWriteError(w, err)
				return
			}

			evt := eventlogger.NewEvent(
				eventlogger.WithType("deletion.requested"),
				eventlogger.WithActor(viewer),
				eventlogger.WithData(ledger.DeletionRequestedEvent{
					TransactionID: id,
					RequestedBy:   viewer,
				}),
			)
			worker.Log(evt)

			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/api/transactions/{id}/approve-deletion", func(w http.ResponseWriter, r *http.Request) {
			viewer, _ := middleware.GetUserName(r.Context())
			id := chi.URLParam(r, "id")

			snap, err := ledgerRepo.Load(r.Context())
			if err != nil {
				slog.Error("failed to load ledger", "error", err)
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}

			requestedBy := ""
			for _, t := range snap.Transactions {
				if t.ID == id {
					requestedBy = t.RequestedBy
				}
			}

			list, err := ledger.ApproveDeletion(snap.Transactions, id, viewer)
			if err != nil {
				respondConsentError(w, err)
				return
			}

			if err := ledgerRepo.OverwriteAll(r.Context(), list, snap.Version); err != nil {
				respondWriteError(w, err)
				return
			}

			evt := eventlogger.NewEvent(
				eventlogger.WithType("deletion.approved"),
				eventlogger.WithActor(viewer),
				eventlogger.WithData(ledger.DeletionApprovedEvent{
					TransactionID: id,
					RequestedBy:   requestedBy,
					ApprovedBy:    viewer,
				}),
			)
			worker.Log(evt)

			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/user/logout", func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(session.CookieName)
			if err == nil {
				sessionRepo.Delete(r.Context(), cookie.Value)
			}

			http.SetCookie(w, &http.Cookie{
				Name:   session.CookieName,
				Value:  "",
				Path:   "/",
				MaxAge: -1,
			})

			w.WriteHeader(http.StatusNoContent)
		})
	})

	slog.Info("server starting", "port", 5000)
	http.ListenAndServe(":5000", router)
}

type createTransactionRequest struct {
	Counterparty string          `json:"counterparty"`
	Kind         ledger.Kind     `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Memo         string          `json:"memo"`
	DebtRef      string          `json:"debt_ref"`
}

type summaryRow struct {
	Partner  string          `json:"partner"`
	Balance  decimal.Decimal `json:"balance"`
	OwesYou  bool            `json:"owes_you"`
	HasAlert bool            `json:"alert"`
}

type historyRow struct {
	ID        string           `json:"id"`
	Creator   string           `json:"creator"`
	Mine      bool             `json:"mine"`
	Kind      ledger.Kind      `json:"kind"`
	Amount    decimal.Decimal  `json:"amount"`
	Memo      string           `json:"memo"`
	Date      string           `json:"date"`
	InFavor   bool             `json:"in_favor"`
	Nested    bool             `json:"nested"`
	Remaining *decimal.Decimal `json:"remaining,omitempty"`
	Pending   bool             `json:"pending"`
	Action    ledger.RowAction `json:"action"`
}

func newHistoryRow(viewer string, row ledger.DisplayRow) historyRow {
	t := row.Transaction
	out := historyRow{
		ID:      t.ID,
		Creator: t.Creator,
		Mine:    t.Creator == viewer,
		Kind:    t.Kind,
		Amount:  t.Amount,
		Memo:    t.Memo,
		Date:    t.CreatedDisplay,
		InFavor: row.InFavor,
		Nested:  row.Nested,
		Pending: row.Pending,
		Action:  row.Action,
	}
	if row.Nested {
		remaining := row.Remaining
		out.Remaining = &remaining
	}
	return out
}

type debtRow struct {
	ID        string          `json:"id"`
	Creator   string          `json:"creator"`
	Memo      string          `json:"memo"`
	Date      string          `json:"date"`
	Original  decimal.Decimal `json:"original"`
	Remaining decimal.Decimal `json:"remaining"`
}

// buildRepayment resolves the repayment's stored kind from the current
// balance and, for a targeted repayment, records the annotation note with
// the debt's new remaining balance before the repayment itself, the way the
// history expects to find them. Validation happens before anything is
// written: a rejected request must leave the shared document untouched.
func buildRepayment(ctx context.Context, viewer string, req createTransactionRequest, transactions []ledger.Transaction, repo ledger.Repository, now time.Time) (ledger.Transaction, error) {
	balance := ledger.NetBalance(viewer, req.Counterparty, transactions)

	memo := req.Memo
	var original ledger.Transaction
	if req.DebtRef != "" {
		if err := ledger.ValidateDebtRef(req.DebtRef, viewer, req.Counterparty, transactions); err != nil {
			return ledger.Transaction{}, err
		}
		for _, t := range transactions {
			if t.ID == req.DebtRef {
				original = t
			}
		}
		memo = fmt.Sprintf("Abono a: %s", original.Memo)
	}

	record, err := ledger.NewRepayment(viewer, req.Counterparty, req.Amount, memo, balance, req.DebtRef, now)
	if err != nil {
		return ledger.Transaction{}, err
	}

	if req.DebtRef != "" {
		rest := ledger.RemainingOnDebt(req.DebtRef, transactions).Sub(req.Amount)
		if rest.IsNegative() {
			rest = decimal.Zero
		}
		noteMemo := fmt.Sprintf("Actualización %s (nuevo saldo: %s€)", original.Memo, rest.Round(2))
		note, err := ledger.NewAnnotation(viewer, req.Counterparty, noteMemo, req.DebtRef, now)
		if err != nil {
			return ledger.Transaction{}, err
		}
		if err := repo.AppendOne(ctx, note); err != nil {
			return ledger.Transaction{}, err
		}
	}

	return record, nil
}

func respondConsentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		// The record is already gone, most likely removed by the other
		// party; nothing was changed.
		http.Error(w, "transaction no longer exists", http.StatusNotFound)
	case errors.Is(err, ledger.ErrOutsidePair), errors.Is(err, ledger.ErrSelfApproval):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ledger.ErrNotActive), errors.Is(err, ledger.ErrNotPending):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("deletion transition failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func respondWriteError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrConflict) {
		http.Error(w, "the ledger changed while you were acting, please retry", http.StatusConflict)
		return
	}
	slog.Error("failed to write ledger", "error", err)
	http.Error(w, err.Error(), http.StatusBadGateway)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func printErrorAndExit(msg string, e error) {
	slog.Error(msg, "error", e)
	os.Exit(1)
}
