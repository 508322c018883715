package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/popmap/internal/census"
	"github.com/sells-group/popmap/internal/estimate"
	"github.com/sells-group/popmap/internal/ingest"
	"github.com/sells-group/popmap/internal/store"
)

const (
	maxCalculateBody     = 1 << 20
	defaultSnapshotLimit = 20
)

type tableSummary struct {
	TableID     string   `json:"table_id"`
	Source      string   `json:"source"`
	CurrentYear int      `json:"current_year"`
	Rows        int      `json:"rows"`
	RowErrors   []string `json:"row_errors"`
}

func summarize(t *census.Table, rowErrs []*ingest.RowError) tableSummary {
	msgs := make([]string, len(rowErrs))
	for i, re := range rowErrs {
		msgs[i] = re.Error()
	}
	return tableSummary{
		TableID:     t.ID(),
		Source:      t.Source(),
		CurrentYear: t.CurrentYear(),
		Rows:        t.Len(),
		RowErrors:   msgs,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok", "loaded": false}
	if t, err := s.engine.Table(); err == nil {
		body["loaded"] = true
		body["table_id"] = t.ID()
		body["rows"] = t.Len()
		body["current_year"] = t.CurrentYear()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handlePopulationData(w http.ResponseWriter, r *http.Request) {
	recs, err := s.engine.All()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fieldMaps(recs))
}

// handleSearch treats absent p1/p2 as Min/Max; present but empty bounds are
// rejected like any other malformed bound.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	minTok, maxTok := "Min", "Max"
	if v.Has("p1") {
		minTok = v.Get("p1")
	}
	if v.Has("p2") {
		maxTok = v.Get("p2")
	}

	recs, err := s.engine.Search(v.Get("q"), minTok, maxTok, v.Get("stat"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fieldMaps(recs))
}

// handleLocation answers JSON null when nothing matches.
func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Lookup(chi.URLParam(r, "location"))
	if eris.Is(err, census.ErrNotFound) {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Fields())
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.States()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleCounties(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.Counties(chi.URLParam(r, "state"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.Cities(chi.URLParam(r, "state"), chi.URLParam(r, "county"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCalculateBody))
	if err != nil {
		s.writeError(w, r, eris.Wrapf(census.ErrInvalidArgument, "read request body: %v", err))
		return
	}

	rels, err := estimate.DecodeRequest(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.estimator.Estimate(rels)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.estimates.Inc()
	writeJSON(w, http.StatusOK, res)
}

// handleUpload parses a multipart "file" part (.csv or .geojson) and serves
// it in place of the current table.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	t, rowErrs, err := s.parseUpload(w, r)
	if err != nil {
		s.metrics.uploads.WithLabelValues("rejected").Inc()
		s.writeError(w, r, err)
		return
	}

	if s.publisher == nil {
		s.metrics.uploads.WithLabelValues("rejected").Inc()
		s.writeError(w, r, eris.Wrap(census.ErrDataUnavailable, "upload: serving is read-only"))
		return
	}
	if err := s.publisher.Replace(r.Context(), t); err != nil {
		s.metrics.uploads.WithLabelValues("failed").Inc()
		s.writeError(w, r, err)
		return
	}

	s.metrics.uploads.WithLabelValues("accepted").Inc()
	s.log.Info("api: upload published",
		zap.String("source", t.Source()),
		zap.Int("rows", t.Len()),
		zap.Int("row_errors", len(rowErrs)),
	)
	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
		tableSummary
	}{
		Message:      "File uploaded and processed successfully",
		tableSummary: summarize(t, rowErrs),
	})
}

func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (*census.Table, []*ingest.RowError, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		return nil, nil, eris.Wrapf(census.ErrInvalidArgument, "upload: %v", err)
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, nil, eris.Wrap(census.ErrMissingArgument, "upload: no file part")
	}
	defer f.Close() //nolint:errcheck
	if hdr.Filename == "" {
		return nil, nil, eris.Wrap(census.ErrMissingArgument, "upload: no selected file")
	}

	mapped, err := ingest.ParseUpload(r.Context(), hdr.Filename, f, s.opts.CurrentYear)
	if err != nil {
		return nil, nil, err
	}
	if len(mapped.Records) == 0 {
		return nil, nil, eris.Wrapf(census.ErrInvalidArgument, "upload: %s has no valid rows", hdr.Filename)
	}

	t, err := census.NewTable(mapped.Records, census.TableOptions{
		Source:      hdr.Filename,
		CurrentYear: s.opts.CurrentYear,
	})
	if err != nil {
		return nil, nil, err
	}
	return t, mapped.RowErrors, nil
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		s.writeError(w, r, eris.Wrap(census.ErrDataUnavailable, "reload: no data sources configured"))
		return
	}
	res, err := s.publisher.Reload(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(res.Table, res.RowErrors))
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		s.writeError(w, r, eris.Wrap(census.ErrDataUnavailable, "snapshots: no store configured"))
		return
	}

	limit := defaultSnapshotLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, eris.Wrapf(census.ErrInvalidArgument, "snapshots: invalid limit %q", raw))
			return
		}
		limit = n
	}

	list, err := s.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []store.SnapshotInfo{}
	}
	writeJSON(w, http.StatusOK, list)
}
