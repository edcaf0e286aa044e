// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server is the HTTP surface of FlowMaster.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/flowmaster/internal/log"
	"github.com/cloudwego/flowmaster/internal/persona"
	"github.com/cloudwego/flowmaster/internal/role"
	"github.com/cloudwego/flowmaster/internal/workflow"
	"github.com/cloudwego/flowmaster/version"
)

const (
	serviceName   = "FlowMaster API"
	maxBodyBytes  = 1 << 20
	shutdownGrace = 10 * time.Second
)

type Server struct {
	svc     *workflow.Service
	timeout time.Duration
}

// New creates the server. timeout bounds each pipeline request; zero means
// only the client connection bounds it.
func New(svc *workflow.Service, timeout time.Duration) *Server {
	return &Server{svc: svc, timeout: timeout}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/roles", s.handleRoles)
	mux.HandleFunc("POST /api/generate-workflow", s.handleGenerate)
	mux.HandleFunc("GET /api/workflows", s.handleList)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGet)
	mux.HandleFunc("GET /api/workflows/{id}/document", s.handleDocument)
	mux.HandleFunc("POST /api/regenerate", s.handleRegenerate)
	mux.HandleFunc("POST /api/artifact-feedback", s.handleFeedback)
	return logMiddleware(corsMiddleware(mux))
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("FlowMaster API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// --- Handlers ---

type generateReq struct {
	Idea         string `json:"idea"`
	EnableMemory *bool  `json:"enable_memory"`
}

type roleInfo struct {
	Role     role.Role `json:"role"`
	Title    string    `json:"title"`
	Goal     string    `json:"goal"`
	Memory   bool      `json:"memory"`
	MaxIters int       `json:"max_iterations"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": serviceName,
		"version": version.Version,
		"docs":    "/api/health",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	p := s.svc.Pipeline()
	out := make([]roleInfo, 0, p.Len())
	for _, ro := range p.Roles() {
		st, _ := p.Stage(ro)
		info := roleInfo{Role: ro, Title: ro.Label(), Memory: st.MemoryEnabled()}
		if d, ok := st.(interface{ Persona() *persona.Persona }); ok {
			info.Goal = d.Persona().Goal
			info.MaxIters = d.Persona().MaxIterations
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"pipeline": p.Name(), "roles": out})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateReq
	if !decode(w, r, &req) {
		return
	}
	enableMemory := true
	if req.EnableMemory != nil {
		enableMemory = *req.EnableMemory
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	resp, err := s.svc.GenerateWorkflow(ctx, req.Idea, enableMemory)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workflows": s.svc.List()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if rec.Response == nil {
		writeDetail(w, http.StatusConflict, fmt.Sprintf("workflow is %s", rec.Status))
		return
	}
	switch format := r.URL.Query().Get("format"); format {
	case "", "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(workflow.Markdown(rec.Response)))
	case "html":
		page, err := workflow.HTML(rec.Response)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(page))
	default:
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
	}
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req workflow.RegenerateRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	art, err := s.svc.Regenerate(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, art)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req workflow.FeedbackRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	res, err := s.svc.ReviewArtifact(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Helpers ---

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(r.Context(), s.timeout)
	}
	return context.WithCancel(r.Context())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// statusOf maps request validation errors to 4xx. A failed stage is a
// server error whatever its kind.
func statusOf(err error) int {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrEmptyIdea),
		errors.Is(err, workflow.ErrUnknownRole),
		errors.Is(err, workflow.ErrMissingField):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type detail struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		log.Error("request failed: %v", err)
	}
	writeDetail(w, code, err.Error())
}

func writeDetail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, detail{Detail: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
