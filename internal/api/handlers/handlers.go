package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/gcsuploader"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/localstore"
	"github.com/dvloznov/expense-tracker/internal/persist"
	"github.com/dvloznov/expense-tracker/internal/remote"
	"github.com/dvloznov/expense-tracker/internal/report"
	"github.com/dvloznov/expense-tracker/internal/view"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// Persister is the write path behind the transaction endpoints.
type Persister interface {
	PersistTransaction(ctx context.Context, identity domain.Identity, tx domain.Transaction) (persist.Result, error)
	UpdateTransaction(ctx context.Context, identity domain.Identity, id string, patch domain.TransactionPatch) (persist.Result, error)
	DeleteTransaction(ctx context.Context, identity domain.Identity, id string) (persist.Result, error)
}

// resultResponse is the JSON shape of a persist.Result.
type resultResponse struct {
	Status      persist.Status     `json:"status"`
	Transaction domain.Transaction `json:"transaction"`
	RemoteError string             `json:"remote_error,omitempty"`
}

func toResponse(res persist.Result) resultResponse {
	out := resultResponse{Status: res.Status, Transaction: res.Transaction}
	if res.Err != nil {
		out.RemoteError = res.Err.Error()
	}
	return out
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	persister Persister
	remote    remote.TransactionStore
	cache     view.Cache
	reports   gcsuploader.ReportStorage
	log       zerolog.Logger
	now       func() time.Time
}

// NewTransactionsHandler creates a new transactions handler. remoteStore and
// reports may be nil.
func NewTransactionsHandler(persister Persister, remoteStore remote.TransactionStore, cache view.Cache, reports gcsuploader.ReportStorage, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		persister: persister,
		remote:    remoteStore,
		cache:     cache,
		reports:   reports,
		log:       log,
		now:       time.Now,
	}
}

// items reconciles the caller's records once and applies the query filter.
func (h *TransactionsHandler) items(r *http.Request) ([]domain.Transaction, report.Filter, view.State, error) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		return nil, filter, "", err
	}
	identity := middleware.IdentityFromContext(r.Context())
	all, state := view.Snapshot(r.Context(), h.remote, h.cache, h.log, identity)
	return report.Apply(all, filter, h.now()), filter, state, nil
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	items, _, state, err := h.items(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": items,
		"count":        len(items),
		"source":       state,
	})
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if tx.Type != "" {
		typ, err := domain.ParseType(string(tx.Type))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		tx.Type = typ
	}

	identity := middleware.IdentityFromContext(r.Context())
	res, err := h.persister.PersistTransaction(r.Context(), identity, tx)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", identity.StorageKey()).Msg("Failed to persist transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, toResponse(res))
}

// UpdateTransaction handles PUT /api/transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch domain.TransactionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	identity := middleware.IdentityFromContext(r.Context())
	res, err := h.persister.UpdateTransaction(r.Context(), identity, id, patch)
	if errors.Is(err, localstore.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to update transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, toResponse(res))
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	identity := middleware.IdentityFromContext(r.Context())
	res, err := h.persister.DeleteTransaction(r.Context(), identity, id)
	if err != nil {
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to delete transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, toResponse(res))
}

// Summary handles GET /api/transactions/summary
func (h *TransactionsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	items, filter, _, err := h.items(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report.Summarize(items, filter.Currency))
}

// ExportCSV handles GET /api/transactions/export.csv. With upload=true the
// report is stored in the report bucket and its URI returned instead.
func (h *TransactionsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	items, _, _, err := h.items(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, items); err != nil {
		h.log.Error().Err(err).Msg("Failed to render CSV")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}

	if upload, _ := strconv.ParseBool(r.URL.Query().Get("upload")); upload {
		if h.reports == nil {
			middleware.WriteError(w, http.StatusServiceUnavailable, "Report storage is not configured")
			return
		}
		identity := middleware.IdentityFromContext(r.Context())
		object := report.ObjectName(identity.StorageKey(), h.now())
		uri, err := h.reports.UploadReport(r.Context(), object, "text/csv", buf.Bytes())
		if err != nil {
			h.log.Error().Err(err).Str("object", object).Msg("Failed to upload report")
			middleware.WriteError(w, http.StatusBadGateway, "Failed to upload report")
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
			"gcs_uri": uri,
			"count":   len(items),
		})
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// parseFilter reads report filter criteria from query parameters.
func parseFilter(q url.Values) (report.Filter, error) {
	period, err := report.ParsePeriod(q.Get("period"))
	if err != nil {
		return report.Filter{}, err
	}

	f := report.Filter{
		Query:         q.Get("q"),
		Type:          domain.Type(q.Get("type")),
		PaymentMethod: q.Get("payment_method"),
		Currency:      q.Get("currency"),
		Period:        period,
	}

	for name, dst := range map[string]*time.Time{"start": &f.Start, "end": &f.End} {
		if s := q.Get(name); s != "" {
			t, err := time.ParseInLocation(dateLayout, s, time.Local)
			if err != nil {
				return report.Filter{}, errors.New("invalid " + name + " date, expected YYYY-MM-DD")
			}
			*dst = t
		}
	}

	for name, dst := range map[string]**float64{"min": &f.MinAmount, "max": &f.MaxAmount} {
		if s := q.Get(name); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return report.Filter{}, errors.New("invalid " + name + " amount")
			}
			*dst = &v
		}
	}

	return f, nil
}

// AccountsHandler handles bank account endpoints.
type AccountsHandler struct {
	accounts persist.AccountStore
	log      zerolog.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(accounts persist.AccountStore, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{accounts: accounts, log: log}
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	accounts, err := h.accounts.GetBankAccounts(r.Context(), identity.StorageKey())
	if err != nil {
		h.log.Error().Err(err).Str("user_id", identity.StorageKey()).Msg("Failed to list accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// Enqueuer starts a resync of a user's unsynced records.
type Enqueuer interface {
	Enqueue(ctx context.Context, uid string) ([]*jobs.PushTransactionJob, error)
}

// JobsHandler handles resync and job-related endpoints.
type JobsHandler struct {
	enqueuer Enqueuer
	store    jobs.JobStore
	log      zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(enqueuer Enqueuer, store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		enqueuer: enqueuer,
		store:    store,
		log:      log,
	}
}

// Sync handles POST /api/sync
func (h *JobsHandler) Sync(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if !identity.IsAuthenticated() {
		middleware.WriteError(w, http.StatusUnauthorized, "Sign in to sync")
		return
	}

	published, err := h.enqueuer.Enqueue(r.Context(), identity.UserID())
	if err != nil {
		h.log.Error().Err(err).Str("user_id", identity.UserID()).Msg("Failed to enqueue resync")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue resync")
		return
	}
	if published == nil {
		published = []*jobs.PushTransactionJob{}
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobs":  published,
		"count": len(published),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	identity := middleware.IdentityFromContext(r.Context())

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil || job.UserID != identity.UserID() {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if !identity.IsAuthenticated() {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"jobs":  []*jobs.PushTransactionJob{},
			"count": 0,
		})
		return
	}

	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID:        identity.UserID(),
		TransactionID: query.Get("transaction_id"),
		Status:        jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.PushTransactionJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
