// Package api serves pastes over HTTP. Every request enters the ring through
// the local node.
//
//	POST /put                 store the body encrypted, answer key+id
//	GET  /get/{key+id}        fetch and decrypt
//	POST /put-unencrypted     store the body as is, answer its id
//	GET  /get-unencrypted/{id}
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.dedis.ch/peerpaste/peer"
	"go.dedis.ch/peerpaste/secret"
	"go.dedis.ch/peerpaste/storage"
	"go.dedis.ch/peerpaste/task"
	"go.dedis.ch/peerpaste/types"
)

// Server is the HTTP front end of a node.
type Server struct {
	log     zerolog.Logger
	addr    string
	node    peer.Pastebin
	timeout time.Duration
	server  *http.Server
}

// New returns a server listening on addr once started. timeout bounds every
// ring operation.
func New(addr string, node peer.Pastebin, timeout time.Duration, log zerolog.Logger) *Server {
	return &Server{log: log, addr: addr, node: node, timeout: timeout}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /put", s.handlePut)
	mux.HandleFunc("POST /put-unencrypted", s.handlePutUnencrypted)
	mux.HandleFunc("GET /get/{key}", s.handleGet)
	mux.HandleFunc("GET /get-unencrypted/{id}", s.handleGetUnencrypted)
	return mux
}

// Start listens in the background.
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.timeout + 10*time.Second,
	}

	go func() {
		s.log.Info().Msgf("http api listening on %s", s.addr)
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server stopped")
		}
	}()
}

// Stop shuts the server down, letting running requests finish.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	keyAndID, err := s.node.PutEncrypted(ctx, "", body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, []byte(keyAndID+"\n"))
}

func (s *Server) handlePutUnencrypted(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	id, err := s.node.Put(ctx, "", body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, []byte(id+"\n"))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	keyAndID := r.PathValue("key")
	if len(keyAndID) != secret.KeyLength+types.IDLength || !types.ValidID(keyAndID[secret.KeyLength:]) {
		http.Error(w, "expected a key followed by a paste id", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	data, err := s.node.GetEncrypted(ctx, "", keyAndID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, data)
}

func (s *Server) handleGetUnencrypted(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !types.ValidID(id) {
		http.Error(w, "expected a paste id", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	data, err := s.node.Get(ctx, "", id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, data)
}

// readBody reads a paste, refusing one that cannot travel.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, types.MaxPasteSize+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return nil, false
	}
	if len(body) > types.MaxPasteSize {
		http.Error(w, types.ErrPasteTooLarge.Error(), http.StatusRequestEntityTooLarge)
		return nil, false
	}
	return body, true
}

func (s *Server) write(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		s.log.Warn().Err(err).Msg("failed to write response")
	}
}

// fail answers with the status matching err.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := status(err)
	s.log.Debug().Err(err).Str("path", r.URL.Path).Int("status", code).Msg("request failed")
	http.Error(w, err.Error(), code)
}

func status(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrPasteTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, task.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
