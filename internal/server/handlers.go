package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Woody88/sitelink-sub002/internal/callout"
	"github.com/Woody88/sitelink-sub002/internal/imaging"
	"github.com/Woody88/sitelink-sub002/internal/pipeline"
)

// maxBodyBytes bounds an uploaded sheet image; rasterized plan pages at
// 150 DPI stay well under this.
const maxBodyBytes = 64 << 20

// marker is one detected callout in the detect-markers response shape.
type marker struct {
	MarkerText   string     `json:"marker_text"`
	Detail       string     `json:"detail"`
	Sheet        string     `json:"sheet"`
	MarkerType   string     `json:"marker_type"`
	Confidence   float64    `json:"confidence"`
	IsValid      bool       `json:"is_valid"`
	FuzzyMatched bool       `json:"fuzzy_matched"`
	BBox         markerBBox `json:"bbox"`
}

type markerBBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type detectMarkersResponse struct {
	Markers          []marker `json:"markers"`
	TotalDetected    int      `json:"total_detected"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
}

// handleDetectMarkers runs the detection pipeline over one uploaded sheet
// image. The sheet's identity and registry arrive in headers; an optional
// "strategy" query parameter overrides the configured strategy.
func (s *Server) handleDetectMarkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body: %v", err)
		return
	}

	page, err := imaging.DecodePage(body, 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable sheet image: %v", err)
		return
	}

	sheetCtx := callout.SheetContext{
		CurrentSheet: strings.TrimSpace(r.Header.Get("X-Sheet-Number")),
		Registry:     parseRegistry(r.Header.Get("X-Valid-Sheets")),
	}

	strategyName := r.URL.Query().Get("strategy")
	if strategyName == "" {
		strategyName = s.cfg.Strategy
	}
	strategy, err := pipeline.NewStrategy(strategyName, s.deps, s.cfg.StrategyOptions())
	if err != nil {
		respondError(w, http.StatusBadRequest, "%v", err)
		return
	}

	s.log.WithFields(logrus.Fields{
		"sheet":        sheetCtx.CurrentSheet,
		"plan_id":      r.Header.Get("X-Plan-Id"),
		"sheet_id":     r.Header.Get("X-Sheet-Id"),
		"total_sheets": r.Header.Get("X-Total-Sheets"),
		"registry":     len(sheetCtx.Registry),
		"strategy":     strategyName,
	}).Info("detecting markers")

	p := pipeline.New(strategy, s.deduper, s.scorer, s.cfg.PipelineConfig(), s.log)
	result := p.Analyze(r.Context(), &pipeline.Sheet{Page: page, Context: sheetCtx})
	if !result.Success {
		respondError(w, http.StatusUnprocessableEntity, "detection failed: %s", result.Error)
		return
	}

	markers := make([]marker, 0, len(result.Callouts))
	for _, c := range result.Callouts {
		detail, sheet := callout.SplitRef(c.Ref)
		markers = append(markers, marker{
			MarkerText:   c.Ref,
			Detail:       detail,
			Sheet:        sheet,
			MarkerType:   string(c.Type),
			Confidence:   c.Confidence,
			IsValid:      sheetCtx.InRegistry(c.TargetSheet),
			FuzzyMatched: c.FuzzyMatched,
			BBox: markerBBox{
				X: c.Bounds.X1,
				Y: c.Bounds.Y1,
				W: c.Bounds.Width(),
				H: c.Bounds.Height(),
			},
		})
	}

	respondJSON(w, http.StatusOK, detectMarkersResponse{
		Markers:          markers,
		TotalDetected:    len(markers),
		ProcessingTimeMs: result.ProcessingTimeMs,
	})
}

type metadataResponse struct {
	SheetNumber string        `json:"sheet_number"`
	Metadata    sheetMetadata `json:"metadata"`
}

type sheetMetadata struct {
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	DPI                int    `json:"dpi"`
	Title              string `json:"title"`
	Notes              string `json:"notes,omitempty"`
	TitleBlockLocation string `json:"titleBlockLocation"`
}

// handleExtractMetadata reads the title block of an uploaded sheet image.
// Extraction is best effort: OCR failure yields empty fields, never an
// error, because the caller treats metadata as advisory.
func (s *Server) handleExtractMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body: %v", err)
		return
	}

	page, err := imaging.DecodePage(body, 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable sheet image: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	meta := extractMetadata(ctx, s.deps.OCR, page, s.log)
	respondJSON(w, http.StatusOK, metadataResponse{
		SheetNumber: meta.sheetNumber,
		Metadata: sheetMetadata{
			Width:              page.Width,
			Height:             page.Height,
			DPI:                page.DPI,
			Title:              meta.title,
			TitleBlockLocation: "bottom-right",
		},
	})
}

func parseRegistry(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	registry := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			registry = append(registry, trimmed)
		}
	}
	return registry
}
