package analytics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kindred-platform/kindred/internal/api"
	"github.com/kindred-platform/kindred/internal/auth"
)

// Handler exposes persisted turn logs to their author.
type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListTurns returns the caller's paginated turn log entries.
func (h *Handler) ListTurns(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params, err := parseListParams(r)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError(err.Error()))
		return
	}

	logs, total, err := h.repo.ListByAuthor(r.Context(), userID, params)
	if err != nil {
		slog.Error("listing turn events", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, logs, total, params.Page, params.PageSize)
}

func parseListParams(r *http.Request) (ListParams, error) {
	q := r.URL.Query()
	params := ListParams{Page: 1, PageSize: 20}

	if raw := q.Get("page"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			params.Page = v
		}
	}
	if raw := q.Get("page_size"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			params.PageSize = v
		}
	}
	if raw := q.Get("degraded"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return params, err
		}
		params.Degraded = &v
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return params, err
		}
		params.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return params, err
		}
		params.To = &t
	}

	return params, nil
}
