// Package controlapi exposes an App's client operations over a small local
// HTTP API: a gorilla/mux router with one handler per route and a shared
// writeJSON helper, covering XRouter's call/send/status surface.
package controlapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"xrouter-network/internal/xrouter"
)

var log = logrus.WithField("component", "control-api")

// Server wires an xrouter.App to an HTTP router.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	app        *xrouter.App
}

// NewServer constructs the router and HTTP server listening at addr.
func NewServer(addr string, app *xrouter.App) *Server {
	s := &Server{router: mux.NewRouter(), app: app}
	s.routes()
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s
}

// Start blocks serving HTTP until the listener fails or is closed.
func (s *Server) Start() error { return s.httpServer.ListenAndServe() }

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error { return s.httpServer.Shutdown(ctx) }

func (s *Server) routes() {
	s.router.Use(loggingMiddleware)
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/call", s.handleCall).Methods("POST")
	s.router.HandleFunc("/send", s.handleSend).Methods("POST")
	s.router.HandleFunc("/customcall", s.handleCustomCall).Methods("POST")
	s.router.HandleFunc("/reply/{id}", s.handleReply).Methods("GET")
	s.router.HandleFunc("/reload", s.handleReload).Methods("POST")
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithField("path", r.URL.Path).Debug("control api request")
		next.ServeHTTP(w, r)
	})
}

type callRequest struct {
	Command       string   `json:"command"`
	Currency      string   `json:"currency"`
	Args          []string `json:"args"`
	Confirmations int      `json:"confirmations"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var result string
	switch req.Command {
	case "GetBlockCount":
		result = s.app.GetBlockCount(ctx, req.Currency, req.Confirmations)
	case "GetBlockHash":
		result = s.app.GetBlockHash(ctx, req.Currency, arg(req.Args, 0), req.Confirmations)
	case "GetBlock":
		result = s.app.GetBlock(ctx, req.Currency, arg(req.Args, 0), req.Confirmations)
	case "GetTransaction":
		result = s.app.GetTransaction(ctx, req.Currency, arg(req.Args, 0), req.Confirmations)
	case "GetAllBlocks":
		n, _ := strconv.Atoi(arg(req.Args, 0))
		result = s.app.GetAllBlocks(ctx, req.Currency, n, req.Confirmations)
	case "GetAllTransactions":
		n, _ := strconv.Atoi(arg(req.Args, 1))
		result = s.app.GetAllTransactions(ctx, req.Currency, arg(req.Args, 0), n, req.Confirmations)
	case "GetBalance":
		result = s.app.GetBalance(ctx, req.Currency, arg(req.Args, 0), req.Confirmations)
	case "GetBalanceUpdate":
		n, _ := strconv.Atoi(arg(req.Args, 1))
		result = s.app.GetBalanceUpdate(ctx, req.Currency, arg(req.Args, 0), n, req.Confirmations)
	case "GetTransactionsBloomFilter":
		n, _ := strconv.Atoi(arg(req.Args, 0))
		result = s.app.GetTransactionsBloomFilter(ctx, req.Currency, n, arg(req.Args, 1), req.Confirmations)
	default:
		http.Error(w, "unknown command "+req.Command, http.StatusBadRequest)
		return
	}
	writeRaw(w, result)
}

func arg(args []string, i int) string {
	if i >= len(args) {
		return ""
	}
	return args[i]
}

type sendRequest struct {
	Currency    string `json:"currency"`
	RawTx       string `json:"rawtx"`
	MaxAttempts int    `json:"maxAttempts"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result := s.app.SendTransaction(r.Context(), req.Currency, req.RawTx, req.MaxAttempts)
	writeRaw(w, result)
}

type customCallRequest struct {
	Plugin        string   `json:"plugin"`
	Params        []string `json:"params"`
	Confirmations int      `json:"confirmations"`
}

func (s *Server) handleCustomCall(w http.ResponseWriter, r *http.Request) {
	var req customCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result := s.app.SendCustomCall(r.Context(), req.Plugin, req.Params, req.Confirmations)
	writeRaw(w, result)
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	confirmations, _ := strconv.Atoi(r.URL.Query().Get("confirmations"))
	if confirmations <= 0 {
		confirmations = 1
	}
	result := s.app.GetReply(xrouter.QueryID(id), confirmations)
	writeRaw(w, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeRaw(w, s.app.GetStatus())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.app.ReloadConfigs(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, `{"reloaded":true}`)
}

// writeRaw writes an already-JSON-encoded string payload verbatim, since
// App's methods already return complete JSON reply objects.
func writeRaw(w http.ResponseWriter, payload string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(payload))
}
