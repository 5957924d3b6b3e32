package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/soaringjerry/storeaudit/internal/models"
	"github.com/soaringjerry/storeaudit/internal/services"
)

// session returns the caller's editing session for the audit in the path.
func (rt *Router) session(r *http.Request) (*services.Session, error) {
	return rt.Sessions.Get(r.Context(), actor(r), r.PathValue("id"))
}

func (rt *Router) handleCreateAudit(w http.ResponseWriter, r *http.Request) {
	var req services.CreateAuditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	req.AuditorID = actor(r)
	a, err := rt.Audits.CreateAudit(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GET /api/audits?store_id=
func (rt *Router) handleListAudits(w http.ResponseWriter, r *http.Request) {
	out, err := rt.Audits.ListAudits(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if out == nil {
		out = []models.Audit{}
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/audits/{id}?reload=1 returns the scored tree as the caller's
// session sees it, unsaved text edits included.
func (rt *Router) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	sess, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("reload") != "" {
		if err := sess.Reload(r.Context()); err != nil {
			rt.writeError(w, r, err)
			return
		}
	}
	tree, err := sess.Tree()
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (rt *Router) handleCloneAudit(w http.ResponseWriter, r *http.Request) {
	var req services.CloneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	req.AuditorID = actor(r)
	a, err := rt.Audits.CloneFromTemplate(r.Context(), r.PathValue("id"), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (rt *Router) handleAddVariableQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubcategoryID string `json:"subcategory_id"`
		Text          string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	sess, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	q, err := sess.AddVariableQuestion(r.Context(), req.SubcategoryID, req.Text)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// DELETE /api/audits/{id}/questions/{qid}?reason= succeeds when the
// question is already gone.
func (rt *Router) handleRemoveQuestion(w http.ResponseWriter, r *http.Request) {
	sess, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := sess.RemoveQuestion(r.Context(), r.PathValue("qid"), r.URL.Query().Get("reason")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/audits/{id}/responses/{qid} writes immediately. Omitted fields
// keep their value; "passed": null clears the answer.
func (rt *Router) handleRecordResponse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Passed           json.RawMessage `json:"passed"`
		Comment          *string         `json:"comment"`
		CorrectiveAction *string         `json:"corrective_action"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	patch := services.ResponsePatch{Comment: req.Comment, CorrectiveAction: req.CorrectiveAction}
	if len(req.Passed) > 0 {
		patch.SetPassed = true
		if err := json.Unmarshal(req.Passed, &patch.Passed); err != nil {
			rt.writeError(w, r, services.NewValidationError("passed must be true, false or null"))
			return
		}
	}
	sess, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	qid := r.PathValue("qid")
	if err := sess.PatchResponse(r.Context(), qid, patch); err != nil {
		rt.writeError(w, r, err)
		return
	}
	resp, _ := sess.Response(qid)
	writeJSON(w, http.StatusOK, resp)
}

type textEdit struct {
	Text string `json:"text"`
}

// PATCH .../comment is debounced; 202 means accepted, not yet written.
func (rt *Router) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	rt.editText(w, r, (*services.Session).UpdateComment)
}

func (rt *Router) handleUpdateCorrectiveAction(w http.ResponseWriter, r *http.Request) {
	rt.editText(w, r, (*services.Session).UpdateCorrectiveAction)
}

func (rt *Router) editText(w http.ResponseWriter, r *http.Request, apply func(*services.Session, string, string) error) {
	var req textEdit
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	sess, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	qid := r.PathValue("qid")
	if err := apply(sess, qid, req.Text); err != nil {
		rt.writeError(w, r, err)
		return
	}
	resp, _ := sess.Response(qid)
	writeJSON(w, http.StatusAccepted, resp)
}

func (rt *Router) handleScore(w http.ResponseWriter, r *http.Request) {
	sess, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	sum, err := sess.Summary()
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (rt *Router) handlePrecheck(w http.ResponseWriter, r *http.Request) {
	sess, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	pc, err := sess.PreFinalizeCheck(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pc)
}

func (rt *Router) handleSaveNotes(w http.ResponseWriter, r *http.Request) {
	var req services.FinalizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	sess, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := sess.SaveNotes(r.Context(), req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/audits/{id}/finalize may be repeated; each call rescores.
func (rt *Router) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req services.FinalizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	sess, err := rt.session(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	a, err := sess.Finalize(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (rt *Router) handleAddPhoto(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhotoType string `json:"photo_type"`
		URL       string `json:"url"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	p, err := rt.Audits.AddPhoto(r.Context(), r.PathValue("id"), req.PhotoType, req.URL)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (rt *Router) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	out, err := rt.Audits.ListPhotos(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if out == nil {
		out = []models.Photo{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) handleHistory(w http.ResponseWriter, r *http.Request) {
	out, err := rt.Audits.History(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if out == nil {
		out = []models.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, out)
}

// report flushes the caller's pending edits and loads the stored audit.
func (rt *Router) report(r *http.Request) (*services.Report, error) {
	sess, err := rt.session(r)
	if err != nil {
		return nil, err
	}
	sess.Flush()
	return rt.Audits.Report(r.Context(), r.PathValue("id"))
}

func reportName(rep *services.Report, ext string) string {
	date := rep.Tree.Audit.Date
	if date.IsZero() {
		date = time.Now()
	}
	return "audit-" + rep.Tree.Audit.ID + "-" + date.Format("2006-01-02") + "." + ext
}

func (rt *Router) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	rep, err := rt.report(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	b, err := services.ExportReportCSV(rep)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+reportName(rep, "csv"))
	_, _ = w.Write(b)
}

func (rt *Router) handleReportXLSX(w http.ResponseWriter, r *http.Request) {
	rep, err := rt.report(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	b, err := services.ExportReportXLSX(rep)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+reportName(rep, "xlsx"))
	_, _ = w.Write(b)
}

// DELETE /api/audits/{id}/session flushes and closes the caller's session.
func (rt *Router) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.Sessions.Release(actor(r), r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
