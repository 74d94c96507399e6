// Package server exposes the detection engine's HTTP boundary: a health
// probe, the marker-detection endpoint the queue worker calls per sheet, and
// a best-effort title-block metadata endpoint sharing the container.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Woody88/sitelink-sub002/internal/callout"
	"github.com/Woody88/sitelink-sub002/internal/config"
	"github.com/Woody88/sitelink-sub002/internal/pipeline"
)

// Server hosts the HTTP endpoints and the per-request pipeline assembly.
type Server struct {
	cfg     *config.Config
	deps    pipeline.Deps
	deduper *callout.Deduplicator
	scorer  *callout.Scorer
	log     *logrus.Entry
	ready   atomic.Bool
	mux     *http.ServeMux
	httpSrv *http.Server
}

// New builds the server around injected detection capabilities. The server
// starts not-ready; call SetReady once the model client is constructed.
func New(cfg *config.Config, deps pipeline.Deps, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		deduper: callout.NewDeduplicator(cfg.DedupeConfig()),
		scorer:  callout.NewScorer(cfg.ScorerConfig()),
		log:     log,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/detect-markers", s.handleDetectMarkers)
	s.mux.HandleFunc("/api/extract-metadata", s.handleExtractMetadata)
	return s
}

// SetReady flips the health probe to ready.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler returns the request handler with request-id logging attached.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Info("request received")
		s.mux.ServeHTTP(w, r)
	})
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.WithField("addr", addr).Info("HTTP server listening")
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
	}
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "initializing",
			"service": "callout-processor",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ready",
		"service": "callout-processor",
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	respondJSON(w, status, map[string]string{
		"error": fmt.Sprintf(format, args...),
	})
}
