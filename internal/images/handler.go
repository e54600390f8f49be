package images

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kindred-platform/kindred/internal/api"
	"github.com/kindred-platform/kindred/internal/auth"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

type GenerateImageRequest struct {
	Prompt      string     `json:"prompt" validate:"required,min=1,max=2000"`
	CharacterID *uuid.UUID `json:"character_id"`
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	var req GenerateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	img, err := h.svc.Generate(r.Context(), userID, req.CharacterID, req.Prompt)
	if err != nil {
		slog.Error("generating image", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusAccepted, img)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	limit, offset := 20, 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	imgs, err := h.svc.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		slog.Error("listing images", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, imgs)
}

// Get returns the image record with the rendered bytes inlined as base64.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	imageID, err := uuid.Parse(chi.URLParam(r, "imageID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid image ID"))
		return
	}

	img, err := h.svc.GetByID(r.Context(), imageID)
	if err != nil {
		slog.Error("fetching image record", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if img == nil {
		api.HandleError(w, api.NewNotFoundError("image not found"))
		return
	}
	if img.UserID != userID {
		api.HandleError(w, api.ErrOwnershipViolation)
		return
	}

	data, err := h.svc.Fetch(r.Context(), img)
	if err != nil {
		slog.Error("fetching image bytes", "prompt_id", img.PromptID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, map[string]any{
		"image":      img,
		"image_data": base64.StdEncoding.EncodeToString(data),
	})
}

func requesterID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil, false
	}
	return id, true
}
