package itmstest

import (
	"net/http"
	"sort"

	"github.com/hitoshi/itmsclient/internal/model"
)

// handleListLabels はGET /projects/{id}/labelsを処理する。
func (s *Server) handleListLabels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.lookupVisibleProject(r)
	if p == nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}

	labels := make([]model.Label, 0)
	for _, l := range s.store.labels {
		if l.ProjectID == p.ProjectID {
			labels = append(labels, *l)
		}
	}
	sort.Slice(labels, func(i, j int) bool {
		return labels[i].LabelID < labels[j].LabelID
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": p.ProjectID,
		"labels":     labels,
	})
}

// handleCreateLabel はPOST /projects/{id}/labelsを処理する。
// プロジェクト内での同名ラベルは409を返す。
func (s *Server) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if !decodeBody(r, &payload) || payload.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.lookupVisibleProject(r)
	if p == nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	if !s.requireLead(w, p.ProjectID, currentUserID(r)) {
		return
	}
	if s.store.labelNameTaken(p.ProjectID, payload.Name, 0) {
		writeError(w, http.StatusConflict, "Label already exists")
		return
	}

	s.store.nextLabelID++
	l := &model.Label{
		LabelID:   s.store.nextLabelID,
		ProjectID: p.ProjectID,
		Name:      payload.Name,
	}
	s.store.labels[l.LabelID] = l

	writeJSON(w, http.StatusCreated, map[string]any{
		"project_id": p.ProjectID,
		"label":      *l,
	})
}

// handleUpdateLabel はPATCH /projects/{id}/labels/{labelId}を処理する。
func (s *Server) handleUpdateLabel(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if !decodeBody(r, &payload) || payload.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	labelID, ok := urlID(r, "labelId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid label id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.lookupVisibleProject(r)
	if p == nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	if !s.requireLead(w, p.ProjectID, currentUserID(r)) {
		return
	}

	l, found := s.store.labels[labelID]
	if !found || l.ProjectID != p.ProjectID {
		writeError(w, http.StatusNotFound, "Label not found")
		return
	}
	if s.store.labelNameTaken(p.ProjectID, payload.Name, labelID) {
		writeError(w, http.StatusConflict, "Label already exists")
		return
	}

	l.Name = payload.Name
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": p.ProjectID,
		"label_id":   l.LabelID,
		"name":       l.Name,
	})
}

// handleDeleteLabel はDELETE /projects/{id}/labels/{labelId}を処理する。
// 課題への付与も同時に解除される。
func (s *Server) handleDeleteLabel(w http.ResponseWriter, r *http.Request) {
	labelID, ok := urlID(r, "labelId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid label id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.lookupVisibleProject(r)
	if p == nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	if !s.requireLead(w, p.ProjectID, currentUserID(r)) {
		return
	}

	l, found := s.store.labels[labelID]
	if !found || l.ProjectID != p.ProjectID {
		writeError(w, http.StatusNotFound, "Label not found")
		return
	}

	delete(s.store.labels, labelID)
	for issueID, labelIDs := range s.store.issueLabels {
		s.store.issueLabels[issueID] = removeID(labelIDs, labelID)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleAddLabelToIssue はPOST /issues/{id}/labelsを処理する。
func (s *Server) handleAddLabelToIssue(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		LabelID int64 `json:"label_id"`
	}
	if !decodeBody(r, &payload) || payload.LabelID == 0 {
		writeError(w, http.StatusBadRequest, "label_id is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userID := currentUserID(r)
	issue := s.lookupIssue(r, userID)
	if issue == nil {
		writeError(w, http.StatusNotFound, "Issue not found")
		return
	}
	if s.store.roleOf(issue.ProjectID, userID) == nil {
		writeError(w, http.StatusForbidden, "Project membership required")
		return
	}

	l, found := s.store.labels[payload.LabelID]
	if !found || l.ProjectID != issue.ProjectID {
		writeError(w, http.StatusNotFound, "Label not found")
		return
	}
	for _, existing := range s.store.issueLabels[issue.IssueID] {
		if existing == payload.LabelID {
			writeError(w, http.StatusConflict, "Label already attached")
			return
		}
	}

	s.store.issueLabels[issue.IssueID] = append(s.store.issueLabels[issue.IssueID], payload.LabelID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Label added",
		"issue":   s.store.issueView(issue),
	})
}

// handleRemoveLabelFromIssue はDELETE /issues/{id}/labels/{labelId}を処理する。
func (s *Server) handleRemoveLabelFromIssue(w http.ResponseWriter, r *http.Request) {
	labelID, ok := urlID(r, "labelId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid label id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userID := currentUserID(r)
	issue := s.lookupIssue(r, userID)
	if issue == nil {
		writeError(w, http.StatusNotFound, "Issue not found")
		return
	}
	if s.store.roleOf(issue.ProjectID, userID) == nil {
		writeError(w, http.StatusForbidden, "Project membership required")
		return
	}

	s.store.issueLabels[issue.IssueID] = removeID(s.store.issueLabels[issue.IssueID], labelID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// removeID はIDリストから指定IDを取り除く。
func removeID(ids []int64, target int64) []int64 {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
