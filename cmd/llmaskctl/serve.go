package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dekarrin/llmask/internal/vocab"
)

// debugServer holds the session state the introspection HTTP handlers close
// over. Single-session, single-matcher: concurrent requests serialize on
// sess.m, since Matcher is not safe for concurrent use.
type debugServer struct {
	sess *session
}

func newServeCommand() *cobra.Command {
	var fixturePath, configPath, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a dev-only HTTP introspection server over a fixture (not the production FFI boundary)",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(fixturePath, configPath)
			if err != nil {
				return err
			}
			ds := &debugServer{sess: sess}

			r := chi.NewRouter()
			r.Use(ds.requestIDLogger)
			var mu sync.Mutex
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					mu.Lock()
					defer mu.Unlock()
					next.ServeHTTP(w, req)
				})
			})
			r.Get("/state", ds.handleState)
			r.Get("/mask", ds.handleMask)
			r.Get("/bitmask", ds.handleBitmask)
			r.Post("/consume", ds.handleConsume)
			r.Post("/rollback", ds.handleRollback)

			cmd.Printf("listening on %s (dev introspection server, not a production FFI host)\n", addr)
			return http.ListenAndServe(addr, r)
		},
	}

	cmd.Flags().StringVarP(&fixturePath, "fixture", "f", "fixtures/digits.yaml", "Path to a vocab/grammar fixture YAML document")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file (defaults baked in if omitted)")
	cmd.Flags().StringVarP(&addr, "addr", "a", "localhost:8089", "Address to listen on")

	return cmd
}

// requestIDLogger tags every request with a uuid for correlating log lines,
// mirroring the teacher's per-request logging in server/api without
// reproducing its auth/session middleware, which has no place in a dev-only
// introspection tool.
func (ds *debugServer) requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		reqID := uuid.NewString()
		ds.sess.log.Info("request", "request_id", reqID, "method", req.Method, "path", req.URL.Path)
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, req)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (ds *debugServer) handleMask(w http.ResponseWriter, req *http.Request) {
	set, err := ds.sess.m.ComputeMask()
	if err != nil {
		writeJSONError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permitted_tokens": permittedTokenNames(ds.sess.vocab, set),
	})
}

func (ds *debugServer) handleBitmask(w http.ResponseWriter, req *http.Request) {
	words, err := ds.sess.m.ComputeBitmask()
	if err != nil {
		writeJSONError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"words": words})
}

func (ds *debugServer) handleState(w http.ResponseWriter, req *http.Request) {
	accepting, accErr := ds.sess.m.IsAccepting()
	resp := map[string]any{
		"stopped":      ds.sess.m.IsStopped(),
		"stop_reason":  ds.sess.m.StopReason().String(),
		"errored":      ds.sess.m.IsError(),
		"is_accepting": accepting,
	}
	if accErr != nil {
		resp["accepting_error"] = accErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type tokenRequest struct {
	Tokens []uint32 `json:"tokens"`
}

func (ds *debugServer) handleConsume(w http.ResponseWriter, req *http.Request) {
	var body tokenRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("decode request body: %w", err))
		return
	}
	tokens := make([]vocab.Token, len(body.Tokens))
	for i, t := range body.Tokens {
		tokens[i] = vocab.Token(t)
	}
	accepted, err := ds.sess.m.TryConsumeTokens(tokens)
	if err != nil {
		writeJSONError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": accepted})
}

type rollbackRequest struct {
	N int `json:"n"`
}

func (ds *debugServer) handleRollback(w http.ResponseWriter, req *http.Request) {
	var body rollbackRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("decode request body: %w", err))
		return
	}
	if err := ds.sess.m.Rollback(body.N); err != nil {
		writeJSONError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
