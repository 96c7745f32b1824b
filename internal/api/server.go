package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docworker/internal/config"
	"docworker/internal/docgen"
	"docworker/internal/document"
	"docworker/internal/extract"
	"docworker/internal/logger"
	"docworker/internal/models"
	"docworker/internal/storage"
	"docworker/internal/tokenizer"
	"docworker/internal/util"
	"docworker/internal/workflows"

	"github.com/google/uuid"
)

type Server struct {
	cfg    config.Config
	store  storage.DocumentStore
	quota  storage.TokenQuota
	driver *docgen.Driver
	tok    tokenizer.Tokenizer
	runs   RunLauncher
	log    *logger.Logger
	now    func() time.Time
}

// NewServer serves documents from b. Runs are executed elsewhere; the server
// only opens them and hands them to runs.
func NewServer(cfg config.Config, b *storage.Backends, tok tokenizer.Tokenizer, runs RunLauncher, log *logger.Logger) *Server {
	return &Server{
		cfg:    cfg,
		store:  b.Documents,
		quota:  b.Quota,
		driver: docgen.NewDriver(nil, tok, cfg.ChunkBudget, log),
		tok:    tok,
		runs:   runs,
		log:    logger.OrNop(log),
		now:    time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/prompts", s.handlePrompts)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentsScoped)
	return withCORS(s.withRequestID(mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	ps := document.NewPromptSet()
	writeJSON(w, http.StatusOK, map[string]any{"prompts": models.Prompts(ps)})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	owner, err := ownerOf(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	names, err := s.store.List(r.Context(), owner)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	docs := make([]models.DocumentSummary, 0, len(names))
	for _, name := range names {
		doc, err := s.store.Load(r.Context(), owner, name)
		if err != nil {
			s.log.Warn("skipping unreadable document", "owner", owner, "document", name, "error", err.Error())
			continue
		}
		docs = append(docs, models.Summarize(doc, s.now()))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDocumentsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	owner, err := ownerOf(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	if len(parts) == 1 && parts[0] == "upload" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleUpload(w, r, owner)
		return
	}

	name := parts[0]
	doc, err := s.store.Load(r.Context(), owner, name)
	if err != nil {
		writeStoreErr(w, err)
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, models.Summarize(doc, s.now()))
		case http.MethodDelete:
			if doc.IsRunning(0, s.now()) {
				writeErr(w, http.StatusConflict, util.ErrRunInProgress)
				return
			}
			if err := s.store.Delete(r.Context(), owner, name); err != nil {
				writeStoreErr(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
		return
	case len(parts) == 2 && parts[1] == "prompts":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"prompts":       models.Prompts(doc.Prompts),
			"consolidation": models.Prompts(doc.Prompts.Consolidation()),
		})
		return
	case len(parts) == 2 && parts[1] == "runs":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"runs": models.Summarize(doc, s.now()).Runs})
		case http.MethodPost:
			s.handleStartRun(w, r, owner, doc)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
		return
	case len(parts) == 4 && parts[1] == "runs":
		runID, err := strconv.Atoi(parts[2])
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid run id: %w", err))
			return
		}
		run := doc.Run(runID)
		if run == nil {
			writeErr(w, http.StatusNotFound, fmt.Errorf("run %d: %w", runID, util.ErrNotFound))
			return
		}
		s.handleRunScoped(w, r, owner, doc, run, parts[3])
		return
	}

	writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) handleRunScoped(w http.ResponseWriter, r *http.Request, owner string, doc *document.Document, run *document.RunRecord, action string) {
	want := http.MethodGet
	if action == "cancel" {
		want = http.MethodPost
	}
	if r.Method != want {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	q := r.URL.Query()

	switch action {
	case "status":
		out := map[string]any{"run": models.Run(doc, run, s.now())}
		if doc.CurrentRun() == run && doc.IsRunning(run.RunID, s.now()) {
			if prog, err := s.runs.Progress(r.Context(), owner, doc.Name); err == nil {
				out["progress"] = prog
			}
			if st := doc.ActiveState(run); st != nil {
				out["queued"] = len(st.ToRun)
			}
		}
		writeJSON(w, http.StatusOK, out)
	case "items":
		items := run.OrderedItems()
		if run.Result() == nil {
			items = run.GenItems()
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": models.Items(items, q.Get("text") != "")})
	case "family":
		id := 0
		if name := q.Get("item"); name != "" {
			it := run.ItemByName(name)
			if it == nil {
				writeErr(w, http.StatusNotFound, fmt.Errorf("item %q: %w", name, util.ErrNotFound))
				return
			}
			id = it.Record().ID
		}
		depth, entries := run.CompletionFamily(id)
		writeJSON(w, http.StatusOK, map[string]any{"depth": depth, "family": models.Family(entries)})
	case "export":
		names := splitNames(q["items"])
		if len(names) == 0 {
			if res := run.Result(); res != nil {
				names = []string{res.Name}
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, run.Export(names))
	case "cancel":
		s.handleCancelRun(w, r, owner, doc, run)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

type startRunRequest struct {
	Prompt  string   `json:"prompt"`
	Items   []string `json:"items,omitempty"`
	FromRun int      `json:"from_run,omitempty"`
	ItemIDs []int    `json:"item_ids,omitempty"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request, owner string, doc *document.Document) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("prompt is required"))
		return
	}
	if p, ok := doc.Prompts.ByName(prompt); ok {
		prompt = p.Text
	}
	ids := req.ItemIDs
	if len(req.Items) > 0 {
		from := doc.Run(req.FromRun)
		if from == nil {
			writeErr(w, http.StatusNotFound, fmt.Errorf("run %d: %w", req.FromRun, util.ErrNotFound))
			return
		}
		resolved, err := from.ItemIDs(req.Items)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		ids = resolved
	}

	ctx := r.Context()
	run, err := s.driver.Launch(ctx, doc, s.quota, owner, prompt, ids)
	switch {
	case errors.Is(err, util.ErrRunInProgress):
		writeErr(w, http.StatusConflict, err)
		return
	case errors.Is(err, util.ErrInsufficientTokens):
		if saveErr := s.store.Save(ctx, owner, doc); saveErr != nil {
			s.log.Error("save refused run", "owner", owner, "document", doc.Name, "error", saveErr.Error())
		}
		writeErr(w, http.StatusPaymentRequired, err)
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.Save(ctx, owner, doc); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.runs.Start(ctx, owner, doc.Name, run.RunID); err != nil {
		s.log.Error("start run workflow", "owner", owner, "document", doc.Name, "run_id", run.RunID, "error", err.Error())
		_ = s.driver.Cancel(ctx, doc, err.Error(), s.saver(owner))
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":      run.RunID,
		"workflow_id": workflows.DocGenWorkflowID(owner, doc.Name),
	})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request, owner string, doc *document.Document, run *document.RunRecord) {
	if doc.CurrentRun() != run || run.Stopped() {
		writeErr(w, http.StatusConflict, fmt.Errorf("run %d is not running", run.RunID))
		return
	}
	ctx := r.Context()
	if err := s.runs.Cancel(ctx, owner, doc.Name, docgen.CancelledMessage); err != nil {
		// No workflow to signal; stop the run in place.
		s.log.Warn("cancel signal failed", "owner", owner, "document", doc.Name, "run_id", run.RunID, "error", err.Error())
		if err := s.driver.Cancel(ctx, doc, docgen.CancelledMessage, s.saver(owner)); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"run_id": run.RunID, "cancelled": true})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, owner string) {
	limit := int64(s.cfg.MaxUploadMB) << 20
	if limit <= 0 {
		limit = 32 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		if single, ok := firstSingleFile(r.MultipartForm.File); ok {
			files = append(files, single)
		}
	}
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}

	type uploadResult struct {
		Name     string `json:"name"`
		Created  bool   `json:"created"`
		Segments int    `json:"segments"`
	}
	out := make([]uploadResult, 0, len(files))
	build := extract.Builder(s.tok, s.cfg.ChunkBudget, s.cfg.ChunkOverlap)

	for _, fh := range files {
		data, err := readUploadedFile(fh)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		doc, created, err := storage.FindOrCreate(r.Context(), s.store, owner, fh.Filename, data, build)
		if err != nil {
			writeErr(w, uploadStatus(err), err)
			return
		}
		s.log.Info("document uploaded", "owner", owner, "document", doc.Name, "created", created, "segments", len(doc.Segments))
		out = append(out, uploadResult{Name: doc.Name, Created: created, Segments: len(doc.Segments)})
	}

	writeJSON(w, http.StatusOK, map[string]any{"uploaded": out})
}

func (s *Server) saver(owner string) docgen.SaveFunc {
	return func(ctx context.Context, doc *document.Document) error {
		return s.store.Save(ctx, owner, doc)
	}
}

func ownerOf(r *http.Request) (string, error) {
	owner := strings.TrimSpace(r.URL.Query().Get("user"))
	if owner == "" {
		return "", fmt.Errorf("user is required")
	}
	return owner, nil
}

// splitNames accepts both repeated and comma separated values.
func splitNames(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func readUploadedFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, files := range m {
		if len(files) > 0 {
			return files[0], true
		}
	}
	return nil, false
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, util.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, util.ErrCorruptFile), errors.Is(err, util.ErrNoExtractableText):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeStoreErr(w http.ResponseWriter, err error) {
	if errors.Is(err, util.ErrNotFound) {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	writeErr(w, http.StatusInternalServerError, err)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "request_id", id, "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start).String())
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
