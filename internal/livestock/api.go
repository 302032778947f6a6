package livestock

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campovivo/platform/internal/auth"
	apperrors "github.com/campovivo/platform/internal/shared/errors"
	"github.com/campovivo/platform/internal/shared/types"
)

// AccountVisibility filters which farm accounts a principal may see
type AccountVisibility interface {
	VisibleAccountIDs(ctx context.Context, userID types.ID) (ids []types.ID, all bool, err error)
}

// Handler provides HTTP handlers for farms and animals
type Handler struct {
	repo       *Repository
	visibility AccountVisibility
}

// NewHandler creates the livestock handler
func NewHandler(repo *Repository, visibility AccountVisibility) *Handler {
	return &Handler{repo: repo, visibility: visibility}
}

// Routes registers the livestock routes. Reads are open to any
// authenticated role (scoped per viewer grants); writes need editor or
// above; deleting a farm account is admin-only.
func (h *Handler) Routes(guard *auth.Guard) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(guard.Protect(auth.RequireNone))
		r.Get("/", h.ListFarms)
		r.Get("/{farmID}", h.GetFarm)
		r.Get("/{farmID}/animals", h.ListAnimals)
	})

	r.Group(func(r chi.Router) {
		r.Use(guard.Protect(auth.EditorsOnly))
		r.Post("/", h.CreateFarm)
		r.Post("/{farmID}/animals", h.CreateAnimal)
	})

	r.Group(func(r chi.Router) {
		r.Use(guard.Protect(auth.AdminOnly))
		r.Delete("/{farmID}", h.DeleteFarm)
	})

	return r
}

// visibleFarm checks whether the caller may see the farm. Hidden farms are
// reported as not found so viewers cannot probe which accounts exist.
func (h *Handler) visibleFarm(ctx context.Context, farmID types.ID) error {
	caller := auth.FromContext(ctx)
	ids, all, err := h.visibility.VisibleAccountIDs(ctx, caller.UserID)
	if err != nil {
		return err
	}
	if all {
		return nil
	}
	for _, id := range ids {
		if id == farmID {
			return nil
		}
	}
	return apperrors.NotFound("farm", farmID.String())
}

// ListFarms lists the farm accounts visible to the caller
func (h *Handler) ListFarms(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())

	ids, all, err := h.visibility.VisibleAccountIDs(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	farms, err := h.repo.ListFarms(r.Context(), ids, all)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  farms,
		"total": len(farms),
	})
}

// GetFarm returns a single visible farm
func (h *Handler) GetFarm(w http.ResponseWriter, r *http.Request) {
	farmID, err := types.ParseID(chi.URLParam(r, "farmID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid farm ID"))
		return
	}

	if err := h.visibleFarm(r.Context(), farmID); err != nil {
		writeError(w, err)
		return
	}

	farm, err := h.repo.GetFarm(r.Context(), farmID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, farm)
}

// CreateFarm creates a new farm account
func (h *Handler) CreateFarm(w http.ResponseWriter, r *http.Request) {
	var req CreateFarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if problems := req.Validate(); len(problems) > 0 {
		writeError(w, apperrors.Validation("invalid farm", problems))
		return
	}

	farm, err := h.repo.CreateFarm(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, farm)
}

// DeleteFarm removes a farm account and its records
func (h *Handler) DeleteFarm(w http.ResponseWriter, r *http.Request) {
	farmID, err := types.ParseID(chi.URLParam(r, "farmID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid farm ID"))
		return
	}

	if err := h.repo.DeleteFarm(r.Context(), farmID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListAnimals lists a visible farm's animals
func (h *Handler) ListAnimals(w http.ResponseWriter, r *http.Request) {
	farmID, err := types.ParseID(chi.URLParam(r, "farmID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid farm ID"))
		return
	}

	if err := h.visibleFarm(r.Context(), farmID); err != nil {
		writeError(w, err)
		return
	}

	filter := ListAnimalsFilter{
		Species: r.URL.Query().Get("species"),
		Search:  r.URL.Query().Get("search"),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := AnimalStatus(s)
		filter.Status = &status
	}

	animals, err := h.repo.ListAnimals(r.Context(), farmID, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  animals,
		"total": len(animals),
	})
}

// CreateAnimal registers an animal on a visible farm
func (h *Handler) CreateAnimal(w http.ResponseWriter, r *http.Request) {
	farmID, err := types.ParseID(chi.URLParam(r, "farmID"))
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid farm ID"))
		return
	}

	var req CreateAnimalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if problems := req.Validate(); len(problems) > 0 {
		writeError(w, apperrors.Validation("invalid animal", problems))
		return
	}

	animal, err := h.repo.CreateAnimal(r.Context(), farmID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, animal)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*apperrors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
