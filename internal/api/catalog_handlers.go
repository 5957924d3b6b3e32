package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/soaringjerry/storeaudit/internal/models"
	"github.com/soaringjerry/storeaudit/internal/services"
)

// GET /api/catalog?active=true
func (rt *Router) handleCatalog(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	c, err := rt.Catalog.Catalog(r.Context(), activeOnly)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (rt *Router) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var c models.Category
	if err := decodeJSON(w, r, &c); err != nil {
		rt.writeError(w, r, err)
		return
	}
	out, err := rt.Catalog.CreateCategory(r.Context(), &c, actor(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (rt *Router) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var p services.CategoryPatch
	if err := decodeJSON(w, r, &p); err != nil {
		rt.writeError(w, r, err)
		return
	}
	out, err := rt.Catalog.UpdateCategory(r.Context(), r.PathValue("id"), p, actor(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) handleCreateSubcategory(w http.ResponseWriter, r *http.Request) {
	var sub models.Subcategory
	if err := decodeJSON(w, r, &sub); err != nil {
		rt.writeError(w, r, err)
		return
	}
	out, err := rt.Catalog.CreateSubcategory(r.Context(), &sub)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// POST /api/catalog/subcategories/{id}/reorder {"order": ["q1", "q2"]}
func (rt *Router) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Order []string `json:"order"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	n, err := rt.Catalog.ReorderQuestions(r.Context(), r.PathValue("id"), req.Order)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (rt *Router) handleAddQuestion(w http.ResponseWriter, r *http.Request) {
	var q models.Question
	if err := decodeJSON(w, r, &q); err != nil {
		rt.writeError(w, r, err)
		return
	}
	out, err := rt.Catalog.AddCatalogQuestion(r.Context(), &q, actor(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (rt *Router) handleEditQuestion(w http.ResponseWriter, r *http.Request) {
	var p services.QuestionPatch
	if err := decodeJSON(w, r, &p); err != nil {
		rt.writeError(w, r, err)
		return
	}
	out, err := rt.Catalog.EditCatalogQuestion(r.Context(), r.PathValue("id"), p, actor(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DELETE /api/catalog/questions/{id} deactivates; snapshots keep the question.
func (rt *Router) handleDeactivateQuestion(w http.ResponseWriter, r *http.Request) {
	if err := rt.Catalog.DeactivateCatalogQuestion(r.Context(), r.PathValue("id"), actor(r)); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleActivateQuestion(w http.ResponseWriter, r *http.Request) {
	if err := rt.Catalog.ActivateCatalogQuestion(r.Context(), r.PathValue("id"), actor(r)); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleExportCatalog(w http.ResponseWriter, r *http.Request) {
	b, err := rt.Catalog.ExportCSV(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=catalog.csv")
	_, _ = w.Write(b)
}

// POST /api/catalog/import.csv with the CSV as the raw body.
func (rt *Router) handleImportCatalog(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		rt.writeError(w, r, services.NewValidationError("could not read body"))
		return
	}
	n, err := rt.Catalog.ImportCSV(r.Context(), data, actor(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (rt *Router) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	st, err := rt.Audits.CreateStore(r.Context(), req.Name, req.Code)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (rt *Router) handleListStores(w http.ResponseWriter, r *http.Request) {
	out, err := rt.Audits.ListStores(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if out == nil {
		out = []models.Store{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) handleStoreSummary(w http.ResponseWriter, r *http.Request) {
	out, err := rt.Analytics.StoreSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
