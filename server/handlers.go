package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/zalepa/crimemap/crime"
	"github.com/zalepa/crimemap/loader"
	"github.com/zalepa/crimemap/render"
)

type labelValue struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type municipalityMeta struct {
	Name           string   `json:"name"`
	Metro          bool     `json:"metro"`
	Zoom           float64  `json:"zoom"`
	PopulationYear string   `json:"population_year,omitempty"`
	Incidents      int      `json:"incidents"`
	From           string   `json:"from,omitempty"`
	To             string   `json:"to,omitempty"`
	Categories     []string `json:"categories"`
	Crimes         []string `json:"crimes"`
}

type metadata struct {
	Default        string             `json:"default"`
	Municipalities []municipalityMeta `json:"municipalities"`
	Metrics        []labelValue       `json:"metrics"`
	Groups         []labelValue       `json:"groups"`
}

func buildMetadata(c *loader.Catalog) metadata {
	bundles := append([]*loader.Bundle{c.Metro()}, c.Municipalities()...)
	meta := metadata{
		Default: c.Metro().Name,
		Metrics: []labelValue{
			{Value: string(render.MetricCount), Label: "Incident count"},
			{Value: string(render.MetricRate), Label: "Incidents per 1,000 residents"},
		},
		Groups: []labelValue{
			{Value: "category", Label: "Category"},
			{Value: "neighborhood", Label: "Neighborhood"},
			{Value: "total", Label: "Total"},
		},
	}
	for _, b := range bundles {
		m := municipalityMeta{
			Name:           b.Name,
			Metro:          b.Metro,
			Zoom:           b.Zoom,
			PopulationYear: b.PopulationYear,
			Incidents:      len(b.Incidents),
			Categories:     crime.Categories(b.Incidents),
			Crimes:         crime.Crimes(b.Incidents),
		}
		if first, last, ok := crime.DateBounds(b.Incidents); ok {
			m.From = first.Format(time.DateOnly)
			m.To = last.Format(time.DateOnly)
		}
		meta.Municipalities = append(meta.Municipalities, m)
	}
	return meta
}

type seriesResponse struct {
	Title        string `json:"title"`
	Municipality string `json:"municipality"`
	Group        string `json:"group"`
	render.Trend
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := htmlContent.ReadFile("web.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, map[string]any{
		"status":    "ok",
		"incidents": len(s.catalog.Metro().Incidents),
	})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(s.metaJSON)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	q, ok := s.query(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, r, render.Map(q.bundle, q.incidents(), q.metric, s.cfg.Server.MaxPoints))
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q, ok := s.query(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, r, seriesResponse{
		Title:        seriesTitle(q),
		Municipality: q.bundle.Name,
		Group:        q.groupName,
		Trend:        render.Series(q.incidents(), q.group, q.top),
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	q, ok := s.query(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.TrendChart(&buf, seriesTitle(q), render.Series(q.incidents(), q.group, q.top)); err != nil {
		s.log.Error("Chart render failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	q, ok := s.query(w, r)
	if !ok {
		return
	}
	trend := render.Series(q.incidents(), crime.ByNeighborhood, 0)
	rows := make([]render.ReportRow, len(trend.Lines))
	for i, l := range trend.Lines {
		rows[i] = render.ReportRow{Name: l.Name, Counts: l.Counts}
	}

	var buf bytes.Buffer
	if err := render.Report(&buf, q.bundle.Name+" crime incidents", q.sel.Describe(), rows, trend.Months); err != nil {
		s.log.Error("Report render failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "crimemap-report.pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// query parses the request or writes the error response.
func (s *Server) query(w http.ResponseWriter, r *http.Request) (query, bool) {
	q, err := parseQuery(r.URL.Query(), s.catalog)
	switch {
	case err == nil:
		return q, true
	case errors.Is(err, loader.ErrUnknownMunicipality):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
	return q, false
}

func seriesTitle(q query) string {
	return fmt.Sprintf("%s incidents by %s, %s", q.bundle.Name, q.groupName, q.sel.Describe())
}

// writeJSON encodes v before writing anything, so an encoding failure is
// logged and answered with a 500 rather than a truncated 200.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		s.log.Error("JSON encode failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", w.Header().Get(requestIDHeader)),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, errors.New("failed to encode response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
