// Package status implements a small RESTful API to check the health of the balance processor and inspect the
// balances it keeps in the store:
//
// - GET /                    welcome message
//
// - GET /health              200 when the store is reachable, 503 otherwise
//
// - GET /accounts/{address}  cached balances of a tracked account
//
// - GET /metrics             prometheus metrics
package status

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tarancss/balproc/lib/store"
)

const timeout = 15

// Status contains the data necessary to deliver the API.
type Status struct {
	db  store.DB
	log logrus.FieldLogger
	s   *http.Server
}

// New returns a pointer to a new Status API.
func New(db store.DB, log logrus.FieldLogger) *Status {
	return &Status{db: db, log: log}
}

// Router returns the API definition.
func (st *Status) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", st.homeHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", st.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{address}", st.accountHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start serves the API on endpoint:port in its own goroutine. Serving errors other than a shutdown are logged.
func (st *Status) Start(endpoint, port string) {
	st.s = &http.Server{
		Handler:      st.Router(),
		Addr:         endpoint + ":" + port,
		WriteTimeout: timeout * time.Second,
		ReadTimeout:  timeout * time.Second,
	}

	go func() {
		if err := st.s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			st.log.WithError(err).Error("Status API stopped")
		}
	}()

	st.log.WithField("addr", st.s.Addr).Info("Listening to status API http requests")
}

// Stop shuts down the http server.
func (st *Status) Stop(ctx context.Context) error {
	if st.s == nil {
		return nil
	}

	return st.s.Shutdown(ctx)
}
