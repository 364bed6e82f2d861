package http

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "wavesight/internal/errors"
	"wavesight/internal/services"
)

// processingDateLayout is the wire format of the processing_date field.
const processingDateLayout = "2006-01-02"

// AnalysisRequest is the POST /api/analysis body.
type AnalysisRequest struct {
	InventoryID    string `json:"inventory_id" validate:"required,uuid4"`
	ConveyorID     string `json:"conveyor_id" validate:"required,uuid4"`
	OutboundID     string `json:"outbound_id" validate:"required,uuid4"`
	ProcessingDate string `json:"processing_date" validate:"omitempty,datetime=2006-01-02"`
	Wave           string `json:"wave" validate:"omitempty,max=64"`
}

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Filename string `json:"filename"`
	Bytes    int    `json:"bytes"`
}

// AnalysisHandler serves uploads, run creation and run retrieval.
type AnalysisHandler struct {
	uploads      *services.UploadStore
	service      *services.AnalysisService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validate     *validator.Validate

	now func() time.Time
}

// NewAnalysisHandler wires the handler.
func NewAnalysisHandler(uploads *services.UploadStore, service *services.AnalysisService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *AnalysisHandler {
	return &AnalysisHandler{
		uploads:      uploads,
		service:      service,
		logger:       logger.With(slog.String("component", "analysis_handler")),
		errorHandler: errorHandler,
		validate:     validator.New(),
		now:          time.Now,
	}
}

// Routes returns the upload and analysis routes.
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/uploads/{kind}", h.Upload)
	r.Post("/analysis", h.CreateRun)
	r.Get("/analysis/{id}", h.GetRun)
	r.Get("/analysis/{id}/workbook", h.DownloadWorkbook)
	r.Get("/analysis/{id}/csv/{section}", h.DownloadSectionCSV)

	return r
}

// Upload handles POST /api/uploads/{kind}: a multipart form with a single
// "file" part.
func (h *AnalysisHandler) Upload(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if !services.ValidKind(kind) {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("kind",
			fmt.Sprintf("unknown report kind %q, want inventory, conveyor or outbound", kind)))
		return
	}

	// Cap the multipart read one byte past the limit so oversize files are
	// detected instead of silently truncated.
	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxSize()+1)
	if err := r.ParseMultipartForm(h.uploads.MaxSize()); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrPayloadTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file", "multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.errorHandler.HandleError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	up, err := h.uploads.Put(services.UploadKind(kind), header.Filename, data)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, UploadResponse{
		ID:       up.ID,
		Kind:     string(up.Kind),
		Filename: up.Filename,
		Bytes:    len(up.Data),
	})
}

// CreateRun handles POST /api/analysis.
func (h *AnalysisHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrInvalidRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, validationError(err))
		return
	}

	// An omitted processing date means "today", matching the interactive
	// tool's behavior.
	processingDate := h.now()
	if req.ProcessingDate != "" {
		var err error
		processingDate, err = time.Parse(processingDateLayout, req.ProcessingDate)
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("processing_date", "must be YYYY-MM-DD"))
			return
		}
	}

	run, err := h.service.Execute(r.Context(), services.RunRequest{
		InventoryID:    req.InventoryID,
		ConveyorID:     req.ConveyorID,
		OutboundID:     req.OutboundID,
		ProcessingDate: processingDate,
		Wave:           req.Wave,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, run)
}

// GetRun handles GET /api/analysis/{id}.
func (h *AnalysisHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, run)
}

// DownloadWorkbook handles GET /api/analysis/{id}/workbook.
func (h *AnalysisHandler) DownloadWorkbook(w http.ResponseWriter, r *http.Request) {
	data, filename, err := h.service.Workbook(chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.Write(data)
}

// DownloadSectionCSV handles GET /api/analysis/{id}/csv/{section}.
func (h *AnalysisHandler) DownloadSectionCSV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	section := chi.URLParam(r, "section")

	data, err := h.service.SectionCSV(id, section)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", section+".csv"))
	w.Write(data)
}

// validationError converts validator errors into a field-level API error.
func validationError(err error) error {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrs) == 0 {
		return apierrors.ErrInvalidRequest
	}

	details := make([]apierrors.ValidationError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		details = append(details, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed %q validation", fe.Tag()),
		})
	}
	return apierrors.NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED",
		"Request validation failed", details)
}
