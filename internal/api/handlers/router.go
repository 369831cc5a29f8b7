package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// NewRouter registers every endpoint and wraps the router in the middleware
// chain. An empty jwtSecret makes every request anonymous.
func NewRouter(tx *TransactionsHandler, accounts *AccountsHandler, jobsHandler *JobsHandler, jwtSecret []byte, log zerolog.Logger) http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(jwtSecret))

	api.HandleFunc("/transactions", tx.ListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", tx.CreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/summary", tx.Summary).Methods(http.MethodGet)
	api.HandleFunc("/transactions/export.csv", tx.ExportCSV).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", tx.UpdateTransaction).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{id}", tx.DeleteTransaction).Methods(http.MethodDelete)

	api.HandleFunc("/accounts", accounts.ListAccounts).Methods(http.MethodGet)

	api.HandleFunc("/sync", jobsHandler.Sync).Methods(http.MethodPost)
	api.HandleFunc("/jobs", jobsHandler.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", jobsHandler.GetJob).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	}).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	return middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(r),
			),
		),
	)
}
