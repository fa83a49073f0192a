package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/assemble"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/bundle"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/generate"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/ingest"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/mapping"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/store"
)

// UploadResponse describes an uploaded template.
type UploadResponse struct {
	BannerID         string   `json:"bannerId"`
	HTMLFile         string   `json:"htmlFile"`
	DynamicJSContent *string  `json:"dynamicJsContent"`
	Width            int      `json:"width"`
	Height           int      `json:"height"`
	Tier             api.Tier `json:"tier,omitempty"`
	Variables        []string `json:"variables"`
}

// SheetRequest is the body of POST /api/gsheet.
type SheetRequest struct {
	SheetURL  string `json:"sheetUrl"`
	SheetName string `json:"sheetName"`
}

// MappingRequest is the body of POST /api/mapping.
type MappingRequest struct {
	DynamicJSContent string   `json:"dynamicJsContent"`
	CSVColumns       []string `json:"csvColumns"`
	Tier             api.Tier `json:"tier,omitempty"`
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return badRequest("invalid multipart form", err)
	}
	return nil
}

func (s *Server) maxUpload() int64 {
	if s.MaxUpload > 0 {
		return s.MaxUpload
	}
	return DefaultMaxUpload
}

// formFile returns the content of the named upload, or nil when absent.
func formFile(r *http.Request, name string) ([]byte, error) {
	f, _, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, badRequest("invalid "+name+" upload", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func formTier(r *http.Request) (api.Tier, error) {
	v := strings.TrimSpace(r.FormValue("tier"))
	if v == "" {
		return "", nil
	}
	t, err := api.ParseTier(v)
	if err != nil {
		return "", badRequest("invalid tier", err)
	}
	return t, nil
}

// POST /api/upload
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := formFile(r, "file")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if data == nil {
		s.writeError(w, r, badRequest("no file uploaded", nil))
		return
	}
	b, err := bundle.Unpack(data)
	if err != nil {
		s.writeError(w, r, badRequest("invalid template", err))
		return
	}

	width, height := assemble.AdSize(b.EntryHTMLText())
	resp := UploadResponse{
		BannerID:  assemble.NewID(),
		HTMLFile:  b.EntryHTML,
		Width:     width,
		Height:    height,
		Variables: []string{},
	}
	if b.HasDynamicJS() {
		src := b.Source()
		resp.DynamicJSContent = &src
		resp.Tier = bundle.DetectTier(src)
		if vars, err := mapping.Variables([]byte(src)); err == nil && vars != nil {
			resp.Variables = vars
		}
	}

	original := &api.Variation{
		Name:     "Original",
		BannerID: resp.BannerID,
		HTMLFile: b.EntryHTML,
		Width:    width,
		Height:   height,
		Tier:     resp.Tier,
		Files:    b.Files,
		Order:    b.Order,
	}
	if err := s.Store.Save(original); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/generate
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}
	tpl, err := formFile(r, "template")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	csvData, err := formFile(r, "csv")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tpl == nil || csvData == nil {
		s.writeError(w, r, badRequest("missing template or csv file", nil))
		return
	}

	var m api.ColumnMapping
	if raw := strings.TrimSpace(r.FormValue("columnMapping")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			s.writeError(w, r, badRequest("invalid columnMapping", err))
			return
		}
	}
	tier, err := formTier(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	b, err := bundle.Unpack(tpl)
	if err != nil {
		s.writeError(w, r, badRequest("invalid template", err))
		return
	}
	rows, err := ingest.ReadCSV(bytes.NewReader(csvData))
	if err != nil {
		s.writeError(w, r, badRequest("invalid csv", err))
		return
	}

	req := &generate.Request{
		Bundle:        b,
		Source:        r.FormValue("dynamicJsContent"),
		Mapping:       m,
		Tier:          tier,
		BaseAssetPath: r.FormValue("baseAssetPath"),
		Rows:          rows,
		IDs:           generate.ParseIDs(r.FormValue("ids")),
	}
	if req.BaseAssetPath == "" {
		req.BaseAssetPath = s.BaseAssetPath
	}
	if req.Tier == "" {
		req.Tier = bundle.DetectTier(req.Source)
		if req.Tier == "" {
			req.Tier = bundle.DetectTier(b.Source())
		}
	}

	batch, err := s.Generator.Generate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, f := range batch.Failures {
		s.log().Warn("row skipped", zap.Int("row", f.Index), zap.String("id", f.ID), zap.Error(f.Err))
	}
	out := make([]*api.Variation, 0, len(batch.Variations))
	for _, v := range batch.Variations {
		if err := s.Store.Save(v); err != nil {
			s.writeError(w, r, err)
			return
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/generate-from-sheets
func (s *Server) handleGenerateFromSheets(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}
	tpl, err := formFile(r, "template")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	source := r.FormValue("dynamicJsContent")
	tier, err := formTier(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tpl == nil || source == "" || tier == "" {
		s.writeError(w, r, badRequest("missing required form data", nil))
		return
	}

	tabs := make(map[string]map[string]string, 3)
	for field, tab := range map[string]string{
		"parentData":   ingest.TabParent,
		"creativeData": ingest.TabCreativeData,
		"omsData":      ingest.TabOMS,
	} {
		row, err := tabRow(r.FormValue(field))
		if err != nil {
			s.writeError(w, r, badRequest("invalid "+field, err))
			return
		}
		tabs[tab] = row
	}

	b, err := bundle.Unpack(tpl)
	if err != nil {
		s.writeError(w, r, badRequest("invalid template", err))
		return
	}
	v, err := s.Generator.Preview(r.Context(), b, source, tier, tabs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Store.Save(v); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// tabRow decodes one selected sheet row sent as a JSON object.
func tabRow(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]string{}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, err
	}
	return ingest.RecordRow(obj), nil
}

// POST /api/gsheet
func (s *Server) handleSheet(w http.ResponseWriter, r *http.Request) {
	var req SheetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid request body", err))
		return
	}
	if req.SheetURL == "" || req.SheetName == "" {
		s.writeError(w, r, badRequest("missing sheetUrl or sheetName", nil))
		return
	}
	data, err := s.Sheets.FetchCSV(r.Context(), req.SheetURL, req.SheetName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// POST /api/mapping
func (s *Server) handleMapping(w http.ResponseWriter, r *http.Request) {
	var req MappingRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, s.maxUpload())).Decode(&req); err != nil {
		s.writeError(w, r, badRequest("invalid request body", err))
		return
	}
	if req.DynamicJSContent == "" || len(req.CSVColumns) == 0 {
		s.writeError(w, r, badRequest("missing dynamicJsContent or csvColumns", nil))
		return
	}
	vars, err := mapping.Variables([]byte(req.DynamicJSContent))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tier := req.Tier
	if tier == "" {
		tier = bundle.DetectTier(req.DynamicJSContent)
	}
	m, err := s.Suggester.Suggest(r.Context(), mapping.Input{Columns: req.CSVColumns, Variables: vars, Tier: tier})
	if err != nil && !errors.Is(err, mapping.ErrNoSuggestion) {
		s.writeError(w, r, err)
		return
	}
	if m == nil {
		m = api.ColumnMapping{}
	}
	writeJSON(w, http.StatusOK, m)
}

// GET /api/download/{bannerId}
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "bannerId"))
	if err != nil {
		s.writeError(w, r, badRequest("invalid banner id", err))
		return
	}
	var buf bytes.Buffer
	if err := s.Store.Zip(id, &buf); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".zip"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// GET /api/variations
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.Store.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*store.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// DELETE /api/variations/{bannerId}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "bannerId"))
	if err != nil {
		s.writeError(w, r, badRequest("invalid banner id", err))
		return
	}
	if err := s.Store.Delete(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log().Info("variation deleted", zap.String("banner_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/preview/{bannerId}/*
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "bannerId"))
	if err != nil {
		s.writeError(w, r, badRequest("invalid banner id", err))
		return
	}
	requested, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || requested == "" {
		s.writeError(w, r, badRequest("invalid path", nil))
		return
	}
	for _, seg := range strings.Split(requested, "/") {
		if seg == ".." {
			s.writeError(w, r, &apiError{Status: http.StatusForbidden, Msg: "forbidden"})
			return
		}
	}
	// Variation files are stored flattened.
	name := path.Base(requested)
	content, err := s.Store.ReadFile(id, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	_, _ = w.Write(content)
}
