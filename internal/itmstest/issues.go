package itmstest

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/hitoshi/itmsclient/internal/model"
)

// handleListIssues はGET /projects/{id}/issuesを処理する。
// 課題番号昇順で返す。
func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.lookupVisibleProject(r)
	if p == nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}

	issues := make([]model.Issue, 0)
	for _, issue := range s.store.issues {
		if issue.ProjectID == p.ProjectID {
			issues = append(issues, s.store.issueView(issue))
		}
	}
	sort.Slice(issues, func(i, j int) bool {
		return issues[i].IssueNumber < issues[j].IssueNumber
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": p.ProjectID,
		"issues":     issues,
	})
}

// handleCreateIssue はPOST /projects/{id}/issuesを処理する。
// タイトルは必須。種別・優先度の未指定時はOTHER / MEDIUMになる。
// 説明はサニタイズされてから保存される。
func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title       string               `json:"title"`
		Description *string              `json:"description"`
		Type        *model.IssueType     `json:"type"`
		Priority    *model.IssuePriority `json:"priority"`
		AssigneeID  *int64               `json:"assignee_id"`
		DueDate     *string              `json:"due_date"`
		Labels      []int64              `json:"labels"`
	}
	if !decodeBody(r, &payload) || payload.Title == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}

	issueType := model.IssueTypeOther
	if payload.Type != nil {
		issueType = *payload.Type
	}
	priority := model.IssuePriorityMedium
	if payload.Priority != nil {
		priority = *payload.Priority
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.lookupVisibleProject(r)
	if p == nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	if s.store.roleOf(p.ProjectID, currentUserID(r)) == nil {
		writeError(w, http.StatusForbidden, "Project membership required")
		return
	}

	description := payload.Description
	if description != nil {
		clean := s.sanitizer.clean(*description)
		description = &clean
	}

	issue := s.store.createIssue(p.ProjectID, payload.Title, description, issueType, priority, payload.AssigneeID, payload.DueDate, currentUserID(r))
	for _, labelID := range payload.Labels {
		if l, found := s.store.labels[labelID]; found && l.ProjectID == p.ProjectID {
			s.store.issueLabels[issue.IssueID] = append(s.store.issueLabels[issue.IssueID], labelID)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Issue created",
		"issue":   s.store.issueView(issue),
	})
}

// lookupIssue は課題を取得し、属するプロジェクトが閲覧者に可視であることを確認する。
// 呼び出し元はs.muを保持していること。
func (s *Server) lookupIssue(r *http.Request, userID int64) *model.Issue {
	issueID, ok := urlID(r, "id")
	if !ok {
		return nil
	}
	issue, found := s.store.issues[issueID]
	if !found {
		return nil
	}
	p, found := s.store.projects[issue.ProjectID]
	if !found || !s.store.visibleTo(p, userID) {
		return nil
	}
	return issue
}

// handleGetIssue はGET /issues/{id}を処理する。
func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue := s.lookupIssue(r, currentUserID(r))
	if issue == nil {
		writeError(w, http.StatusNotFound, "Issue not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issue": s.store.issueView(issue)})
}

// handleUpdateIssue はPATCH /issues/{id}を処理する。
// 変更されたフィールドごとに履歴を記録する。
func (s *Server) handleUpdateIssue(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title       *string              `json:"title"`
		Description *string              `json:"description"`
		Type        *model.IssueType     `json:"type"`
		Priority    *model.IssuePriority `json:"priority"`
		DueDate     *string              `json:"due_date"`
		Status      *model.IssueStatus   `json:"status"`
	}
	if !decodeBody(r, &payload) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
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

	if payload.Title != nil {
		s.store.recordChange(issue.IssueID, userID, "title", strPtr(issue.Title), payload.Title)
		issue.Title = *payload.Title
	}
	if payload.Description != nil {
		clean := s.sanitizer.clean(*payload.Description)
		s.store.recordChange(issue.IssueID, userID, "description", issue.Description, &clean)
		issue.Description = &clean
	}
	if payload.Type != nil {
		s.store.recordChange(issue.IssueID, userID, "type", strPtr(string(issue.Type)), strPtr(string(*payload.Type)))
		issue.Type = *payload.Type
	}
	if payload.Priority != nil {
		s.store.recordChange(issue.IssueID, userID, "priority", strPtr(string(issue.Priority)), strPtr(string(*payload.Priority)))
		issue.Priority = *payload.Priority
	}
	if payload.DueDate != nil {
		s.store.recordChange(issue.IssueID, userID, "due_date", issue.DueDate, payload.DueDate)
		issue.DueDate = payload.DueDate
	}
	if payload.Status != nil {
		s.store.recordChange(issue.IssueID, userID, "status", strPtr(string(issue.Status)), strPtr(string(*payload.Status)))
		issue.Status = *payload.Status
	}
	issue.UpdatedAt = timestamp()

	writeJSON(w, http.StatusOK, map[string]any{"issue": s.store.issueView(issue)})
}

// handleUpdateAssignee はPATCH /issues/{id}/assigneeを処理する。
// assignee_idをnullにすると未割り当てに戻る。変更は履歴に記録される。
func (s *Server) handleUpdateAssignee(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AssigneeID *int64 `json:"assignee_id"`
	}
	if !decodeBody(r, &payload) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
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
	if payload.AssigneeID != nil {
		if _, found := s.store.users[*payload.AssigneeID]; !found {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
	}

	s.store.recordChange(issue.IssueID, userID, "assignee_id", idLabel(issue.AssigneeID), idLabel(payload.AssigneeID))
	issue.AssigneeID = payload.AssigneeID
	issue.UpdatedAt = timestamp()

	writeJSON(w, http.StatusOK, map[string]any{"issue": s.store.issueView(issue)})
}

// handleGetHistory はGET /issues/{id}/historyを処理する。
// 変更履歴を古い順で返す。
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue := s.lookupIssue(r, currentUserID(r))
	if issue == nil {
		writeError(w, http.StatusNotFound, "Issue not found")
		return
	}

	history := s.store.history[issue.IssueID]
	if history == nil {
		history = make([]model.HistoryEntry, 0)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"issue_id": issue.IssueID,
		"history":  history,
	})
}

// idLabel は履歴記録用に*int64を10進文字列へ変換する。nilはnilのまま。
func idLabel(id *int64) *string {
	if id == nil {
		return nil
	}
	v := strconv.FormatInt(*id, 10)
	return &v
}
