package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/advanderveer/at2/ledger"
	"github.com/advanderveer/at2/ledger/agreement"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Service is the path all rpc methods are served under
const Service = "/at2.AT2"

// HeaderRequestID is set on every response, clients may provide their own
const HeaderRequestID = "X-Request-Id"

// maxBody is the largest request we decode
const maxBody = 1 << 16

//Submitter disseminates claims
type Submitter interface {
	Submit(ctx context.Context, c *ledger.Claim) error
}

//Querier serves the read-only views
type Querier interface {
	GetBalance(id ledger.PK) (uint64, error)
	GetLastSequence(id ledger.PK) (uint32, error)
	GetLatestTransactions() []ledger.ProcessedTx
}

// Server exposes the node to clients over HTTP with JSON bodies
type Server struct {
	router *mux.Router
	sub    Submitter
	q      Querier
	logs   logrus.FieldLogger
}

// NewServer creates the rpc handler. Metrics from 'g' are served at /metrics
// when it is not nil.
func NewServer(logs logrus.FieldLogger, sub Submitter, q Querier, g prometheus.Gatherer) (s *Server) {
	s = &Server{
		router: mux.NewRouter(),
		sub:    sub,
		q:      q,
		logs:   logs.WithField("component", "rpc"),
	}

	s.router.Use(s.requestID)
	rpc := s.router.PathPrefix(Service).Methods(http.MethodPost).Subrouter()
	rpc.HandleFunc("/SendAsset", s.sendAsset)
	rpc.HandleFunc("/GetBalance", s.getBalance)
	rpc.HandleFunc("/GetLastSequence", s.getLastSequence)
	rpc.HandleFunc("/GetLatestTransactions", s.getLatestTransactions)

	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	if g != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type ctxKey int

const requestIDKey ctxKey = 0

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}

		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) reqLogs(r *http.Request) logrus.FieldLogger {
	id, _ := r.Context().Value(requestIDKey).(string)
	return s.logs.WithFields(logrus.Fields{"request_id": id, "path": r.URL.Path})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	err := dec.Decode(v)
	if err == io.EOF {
		return true //empty body, zero request
	} else if err != nil {
		s.reqLogs(r).WithError(err).Debug("failed to decode request")
		s.fail(w, r, http.StatusBadRequest, ErrMalformedRequest)
		return false
	}

	return true
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.reqLogs(r).WithError(err).Error("failed to encode response")
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorReply{Error: err.Error()})
}

func (s *Server) pk(w http.ResponseWriter, r *http.Request, b []byte) (pk ledger.PK, ok bool) {
	pk, err := ledger.PKFromBytes(b)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return pk, false
	}

	return pk, true
}

func (s *Server) sendAsset(w http.ResponseWriter, r *http.Request) {
	var req SendAssetRequest
	if !s.decode(w, r, &req) {
		return
	}

	c := &ledger.Claim{Sequence: req.Sequence, Amount: req.Amount}
	var ok bool
	if c.Sender, ok = s.pk(w, r, req.Sender); !ok {
		return
	}

	if c.Recipient, ok = s.pk(w, r, req.Recipient); !ok {
		return
	}

	if err := c.SetSignature(req.Signature); err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	err := s.sub.Submit(r.Context(), c)
	switch {
	case err == nil:
	case errors.Cause(err) == agreement.ErrUnavailable:
		s.fail(w, r, http.StatusServiceUnavailable, ErrUnavailable)
		return
	default:
		s.reqLogs(r).WithError(err).Error("failed to submit claim")
		s.fail(w, r, http.StatusInternalServerError, errors.New(http.StatusText(http.StatusInternalServerError)))
		return
	}

	s.respond(w, r, SendAssetReply{})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	var req GetBalanceRequest
	if !s.decode(w, r, &req) {
		return
	}

	id, ok := s.pk(w, r, req.Sender)
	if !ok {
		return
	}

	amount, err := s.q.GetBalance(id)
	if err != nil {
		s.reqLogs(r).WithError(err).Error("failed to get balance")
		s.fail(w, r, http.StatusInternalServerError, errors.New(http.StatusText(http.StatusInternalServerError)))
		return
	}

	s.respond(w, r, GetBalanceReply{Amount: amount})
}

func (s *Server) getLastSequence(w http.ResponseWriter, r *http.Request) {
	var req GetLastSequenceRequest
	if !s.decode(w, r, &req) {
		return
	}

	id, ok := s.pk(w, r, req.Sender)
	if !ok {
		return
	}

	seq, err := s.q.GetLastSequence(id)
	if err != nil {
		s.reqLogs(r).WithError(err).Error("failed to get last sequence")
		s.fail(w, r, http.StatusInternalServerError, errors.New(http.StatusText(http.StatusInternalServerError)))
		return
	}

	s.respond(w, r, GetLastSequenceReply{Sequence: seq})
}

func (s *Server) getLatestTransactions(w http.ResponseWriter, r *http.Request) {
	var req GetLatestTransactionsRequest
	if !s.decode(w, r, &req) {
		return
	}

	txs := s.q.GetLatestTransactions()
	rep := GetLatestTransactionsReply{Transactions: make([]FullTransaction, 0, len(txs))}
	for _, tx := range txs {
		rep.Transactions = append(rep.Transactions, FullTransaction{
			Timestamp: tx.Timestamp.Format(time.RFC3339),
			Sender:    tx.Sender.Bytes(),
			Recipient: tx.Recipient.Bytes(),
			Amount:    tx.Amount,
		})
	}

	s.respond(w, r, rep)
}
