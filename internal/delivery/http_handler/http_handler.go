package httphandler

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/domain/records"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest/sources"
	"github.com/hankgalt/records-ingest/internal/usecase/services/ingestion"
)

const (
	UPLOAD_FIELD       = "file"
	DEFAULT_UPLOAD_DIR = "_temp"
)

const (
	ERR_NO_FILE          = "no file provided"
	ERR_PROCESSING_FILE  = "error processing file"
	ERR_INVALID_UPLOAD   = "invalid multipart upload"
	ERR_FETCHING_RECORDS = "error fetching records"
	ERR_INVALID_LIMIT    = "limit must be a non-negative integer"
	ERR_NIL_SERVICE      = "http handler: ingestion service is required"
)

var ErrNilService = errors.New(ERR_NIL_SERVICE)

type Config struct {
	ingestion.IngestionService
	UploadDir string    // temp files for uploads, defaults to DEFAULT_UPLOAD_DIR
	AccessLog io.Writer // combined access log, nil disables it
	Logger    logger.Logger
}

type httpServer struct {
	*Config
	maxFileSize int64
}

type errorResponse struct {
	Error            string `json:"error"`
	Details          string `json:"details,omitempty"`
	Kind             string `json:"kind,omitempty"`
	RecordsProcessed int64  `json:"recordsProcessed,omitempty"`
}

type uploadResponse struct {
	Message          string `json:"message"`
	RecordsProcessed int64  `json:"recordsProcessed"`
	IngestID         string `json:"ingestId"`
	LinesRead        int64  `json:"linesRead"`
	Rejected         int64  `json:"rejected,omitempty"`
	Batches          uint   `json:"batches"`
}

// NewHandler builds the routed handler for the ingestion API.
func NewHandler(config *Config) (http.Handler, error) {
	if config == nil || config.IngestionService == nil {
		return nil, ErrNilService
	}
	if config.UploadDir == "" {
		config.UploadDir = DEFAULT_UPLOAD_DIR
	}
	if config.Logger == nil {
		config.Logger = logger.GetSlogLogger()
	}
	if err := os.MkdirAll(config.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating upload dir %s: %w", config.UploadDir, err)
	}

	srv := &httpServer{
		Config:      config,
		maxFileSize: config.Config().MaxFileSizeBytes,
	}

	router := mux.NewRouter()
	router.Use(srv.decorateContext)
	router.HandleFunc("/upload", srv.handlePostUpload).Methods("POST").Name("PostUpload")
	router.HandleFunc("/records", srv.handleGetRecords).Methods("GET").Name("GetRecords")
	router.HandleFunc("/health", srv.handleGetHealth).Methods("GET").Name("GetHealth")
	router.Handle("/metrics", promhttp.Handler())

	var h http.Handler = router
	if config.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(config.AccessLog, h)
	}
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	return h, nil
}

// NewHTTPServer returns a server for the ingestion API. tlsCfg may be nil.
func NewHTTPServer(config *Config, addr string, tlsCfg *tls.Config) (*http.Server, error) {
	h, err := NewHandler(config)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// decorateContext puts the logger in the request context.
func (s *httpServer) decorateContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithLogger(r.Context(), s.Logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handlePostUpload streams the multipart "file" part to a temp file and ingests it.
// The temp file is owned by the ingestion from then on and removed on every path.
func (s *httpServer) handlePostUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := s.Logger

	path, err := s.receiveUpload(r)
	if err != nil {
		if errors.Is(err, errNoFile) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: ERR_NO_FILE})
			return
		}
		l.Error("error receiving upload", "error", err.Error())
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ERR_INVALID_UPLOAD, Details: err.Error()})
		return
	}

	src, err := (&sources.LocalFileConfig{Path: path, RemoveOnRelease: true}).BuildSource(ctx)
	if err != nil {
		l.Error("error building upload source", "path", path, "error", err.Error())
		if rErr := os.Remove(path); rErr != nil && !errors.Is(rErr, os.ErrNotExist) {
			l.Error("error removing upload", "path", path, "error", rErr.Error())
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: ERR_PROCESSING_FILE, Details: err.Error()})
		return
	}

	sum, err := s.ProcessFile(ctx, src)
	if err != nil {
		status := http.StatusInternalServerError
		if records.IsClientFault(err) {
			status = http.StatusBadRequest
		}
		resp := errorResponse{
			Error:   ERR_PROCESSING_FILE,
			Details: err.Error(),
			Kind:    string(records.KindOf(err)),
		}
		if sum != nil {
			resp.RecordsProcessed = sum.RecordsProcessed
		}
		writeJSON(w, status, resp)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:          "file processed successfully",
		RecordsProcessed: sum.RecordsProcessed,
		IngestID:         sum.IngestID,
		LinesRead:        sum.LinesRead,
		Rejected:         sum.Rejected,
		Batches:          sum.Batches,
	})
}

var errNoFile = errors.New(ERR_NO_FILE)

// receiveUpload copies at most maxFileSize+1 bytes of the file part into a temp file,
// so an oversized upload is reported by its declared size without being stored whole.
func (s *httpServer) receiveUpload(r *http.Request) (string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return "", errNoFile
		}
		return "", err
	}

	for {
		part, err := mr.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", errNoFile
			}
			return "", err
		}
		if part.FormName() != UPLOAD_FIELD || part.FileName() == "" {
			part.Close()
			continue
		}

		f, err := os.CreateTemp(s.UploadDir, "upload-*.csv")
		if err != nil {
			part.Close()
			return "", fmt.Errorf("error creating temp file: %w", err)
		}

		_, cErr := io.CopyN(f, part, s.maxFileSize+1)
		part.Close()
		if cErr != nil && !errors.Is(cErr, io.EOF) {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("error reading upload: %w", cErr)
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return "", fmt.Errorf("error writing upload: %w", err)
		}
		return f.Name(), nil
	}
}

// handleGetRecords lists the latest persisted records, newest first.
func (s *httpServer) handleGetRecords(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: ERR_INVALID_LIMIT})
			return
		}
		limit = n
	}

	recs, err := s.GetLatestRecords(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: ERR_FETCHING_RECORDS, Details: err.Error()})
		return
	}
	if recs == nil {
		recs = []records.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleGetHealth reports 503 while the records store is unreachable.
func (s *httpServer) handleGetHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Ping(r.Context()); err != nil {
		s.Logger.Error("health check failed", "error", err.Error())
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.GetSlogLogger().Error("error encoding response", "error", err.Error())
	}
}
