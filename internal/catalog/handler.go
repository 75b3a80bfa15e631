package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ff-menu/ff-menu/internal/platform/httpx"
)

// Uploader stores an uploaded image and returns its public URL.
type Uploader interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// HandlerConfig bounds request bodies.
type HandlerConfig struct {
	ImportMaxBytes int64
	UploadMaxBytes int64
}

// Handler serves the catalog JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	uploader Uploader
	cfg      HandlerConfig
}

// NewHandler builds a Handler. uploader may be nil, which disables uploads.
func NewHandler(logger *slog.Logger, service *Service, uploader Uploader, cfg HandlerConfig) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ImportMaxBytes <= 0 {
		cfg.ImportMaxBytes = 10 << 20
	}
	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = 5 << 20
	}
	return &Handler{logger: logger, service: service, uploader: uploader, cfg: cfg}
}

// MountPublicRoutes registers endpoints that need no session.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/menu", h.menu)
}

// MountAdminRoutes registers the administration endpoints.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.listCategories)
		r.Post("/", h.createCategory)
		r.Put("/reorder", h.reorderCategories)
		r.Get("/{id}", h.getCategory)
		r.Put("/{id}", h.renameCategory)
		r.Delete("/{id}", h.deleteCategory)
		r.Patch("/{id}/reorder", h.moveCategory)
	})
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Put("/reorder", h.reorderProducts)
		r.Get("/{id}", h.getProduct)
		r.Put("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
		r.Patch("/{id}/reorder", h.moveProduct)
	})
	r.Post("/upload", h.upload)
	r.Post("/import", h.importSheet)
	r.Get("/export", h.exportSheet)
}

// respondError maps catalog errors onto the shared problem responses.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		err = fmt.Errorf("%w: %s", httpx.ErrValidation, strings.TrimPrefix(err.Error(), ErrValidation.Error()+": "))
	case errors.Is(err, ErrNotFound):
		err = fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error())
	case errors.Is(err, ErrCategoryHasProducts):
		err = fmt.Errorf("%w: category still has products", httpx.ErrConflict)
	case errors.Is(err, httpx.ErrValidation):
	default:
		h.logger.Error("catalog request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", ErrValidation)
	}
	return id, nil
}

// ============================================================================
// PUBLIC
// ============================================================================

func (h *Handler) menu(w http.ResponseWriter, r *http.Request) {
	menu, err := h.service.Menu(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, menu)
}

// ============================================================================
// CATEGORIES
// ============================================================================

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, categories)
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	category, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, category)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	category, err := h.service.CreateCategory(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, category)
}

func (h *Handler) renameCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req CategoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	category, err := h.service.RenameCategory(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, category)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) moveCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req MoveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.service.MoveCategory(r.Context(), id, req); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "category moved")
}

func (h *Handler) reorderCategories(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.service.ReorderCategories(r.Context(), req); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "categories reordered")
}

// ============================================================================
// PRODUCTS
// ============================================================================

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	var filter ProductFilter
	if raw := r.URL.Query().Get("categoryId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.respondError(w, r, validationError("invalid categoryId"))
			return
		}
		filter.CategoryID = &id
	}
	products, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req ProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) moveProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req MoveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.service.MoveProduct(r.Context(), id, req); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "product moved")
}

func (h *Handler) reorderProducts(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.service.ReorderProducts(r.Context(), req); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Message(w, http.StatusOK, "products reordered")
}

// ============================================================================
// FILES
// ============================================================================

type uploadResponse struct {
	PublicURL string `json:"publicUrl"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "image storage is not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.UploadMaxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, r, validationError("file is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if header.Size <= 0 || contentType == "" {
		h.respondError(w, r, validationError("file is empty or has no type"))
		return
	}
	key := uuid.NewString() + strings.ToLower(path.Ext(header.Filename))
	publicURL, err := h.uploader.Put(r.Context(), key, file, header.Size, contentType)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.Info("image uploaded", slog.String("key", key), slog.Int64("size", header.Size))
	httpx.JSON(w, http.StatusOK, uploadResponse{PublicURL: publicURL})
}

type importResponse struct {
	ImportResult
	Message string `json:"message"`
}

func (h *Handler) importSheet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.ImportMaxBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, r, validationError("file is required"))
		return
	}
	defer file.Close()

	result, err := h.service.Import(r.Context(), file)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, importResponse{
		ImportResult: result,
		Message: fmt.Sprintf("%d products created, %d updated, %d rows skipped",
			result.CreatedCount, result.UpdatedCount, len(result.Skipped)),
	})
}

func (h *Handler) exportSheet(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), &buf); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ExportFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
