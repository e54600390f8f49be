package characters

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kindred-platform/kindred/internal/api"
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

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCharacterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	character, err := h.svc.Create(r.Context(), &req)
	if err != nil {
		slog.Error("creating character", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, character)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	params := DefaultListParams()
	if p := r.URL.Query().Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}
	if r.URL.Query().Get("available") == "true" {
		params.AvailableOnly = true
	}

	chars, totalCount, err := h.svc.List(r.Context(), params)
	if err != nil {
		slog.Error("listing characters", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, chars, totalCount, params.Page, params.PageSize)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	character, ok := h.fromPath(w, r)
	if !ok {
		return
	}
	api.JSON(w, http.StatusOK, character)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	character, ok := h.fromPath(w, r)
	if !ok {
		return
	}

	var req UpdateCharacterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	updated, err := h.svc.Update(r.Context(), character, &req)
	if err != nil {
		slog.Error("updating character", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	character, ok := h.fromPath(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), character.ID); err != nil {
		slog.Error("deleting character", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "character deleted successfully")
}

// Details serves the prompt dossier for a character type without touching
// the database.
func (h *Handler) Details(w http.ResponseWriter, r *http.Request) {
	characterType := chi.URLParam(r, "characterType")
	api.JSON(w, http.StatusOK, DetailsFor(characterType))
}

func (h *Handler) fromPath(w http.ResponseWriter, r *http.Request) (*Character, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "characterID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid character ID"))
		return nil, false
	}

	character, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("fetching character", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return nil, false
	}
	if character == nil {
		api.HandleError(w, api.NewNotFoundError("character not found"))
		return nil, false
	}
	return character, true
}
