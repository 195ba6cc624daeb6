package itmstest

import (
	"net/http"
	"sort"

	"github.com/hitoshi/itmsclient/internal/model"
)

// handleListProjects はGET /projectsを処理する。
// ログイン中ユーザーに可視なプロジェクトをキー昇順で返す。
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	projects := make([]model.Project, 0)
	for _, p := range s.store.projects {
		if s.store.visibleTo(p, userID) {
			projects = append(projects, s.store.projectView(p, userID))
		}
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].ProjectKey < projects[j].ProjectKey
	})
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// handleCreateProject はPOST /projectsを処理する。
// キーの重複は409を返す。作成者はLEADとして登録される。
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)

	var payload struct {
		ProjectKey  string  `json:"project_key"`
		Name        string  `json:"name"`
		Description *string `json:"description"`
		IsPublic    *bool   `json:"is_public"`
	}
	if !decodeBody(r, &payload) || payload.ProjectKey == "" || payload.Name == "" {
		writeError(w, http.StatusBadRequest, "Project key and name are required")
		return
	}

	isPublic := true
	if payload.IsPublic != nil {
		isPublic = *payload.IsPublic
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store.projectKeyTaken(payload.ProjectKey, 0) {
		writeError(w, http.StatusConflict, "Project key already exists")
		return
	}

	p := s.store.createProject(payload.ProjectKey, payload.Name, payload.Description, isPublic, userID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Project created",
		"project": s.store.projectView(p, userID),
	})
}

// lookupVisibleProject は可視なプロジェクトを取得する。
// 不存在と不可視は呼び出し元から区別できない404相当としてnilを返す。
// 呼び出し元はs.muを保持していること。
func (s *Server) lookupVisibleProject(r *http.Request) *model.Project {
	projectID, ok := urlID(r, "id")
	if !ok {
		return nil
	}
	p, found := s.store.projects[projectID]
	if !found || !s.store.visibleTo(p, currentUserID(r)) {
		return nil
	}
	return p
}

// handleGetProject はGET /projects/{id}を処理する。
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.lookupVisibleProject(r)
	if p == nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project": s.store.projectView(p, currentUserID(r))})
}

// handleUpdateProject はPATCH /projects/{id}を処理する。LEADのみ可能。
func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProjectKey  *string `json:"project_key"`
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if !decodeBody(r, &payload) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
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

	if payload.ProjectKey != nil {
		if s.store.projectKeyTaken(*payload.ProjectKey, p.ProjectID) {
			writeError(w, http.StatusConflict, "Project key already exists")
			return
		}
		p.ProjectKey = *payload.ProjectKey
	}
	if payload.Name != nil {
		p.Name = *payload.Name
	}
	if payload.Description != nil {
		p.Description = payload.Description
	}

	writeJSON(w, http.StatusOK, map[string]any{"project": s.store.projectView(p, currentUserID(r))})
}

// handleUpdateProjectVisibility はPATCH /projects/{id}/visibilityを処理する。
func (s *Server) handleUpdateProjectVisibility(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		IsPublic *bool `json:"is_public"`
	}
	if !decodeBody(r, &payload) || payload.IsPublic == nil {
		writeError(w, http.StatusBadRequest, "is_public is required")
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

	p.IsPublic = *payload.IsPublic
	writeJSON(w, http.StatusOK, map[string]any{"project": s.store.projectView(p, currentUserID(r))})
}

// handleDeleteProject はDELETE /projects/{id}を処理する。
// 課題・ラベル・メンバーシップも連鎖的に削除される。
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
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

	for issueID, issue := range s.store.issues {
		if issue.ProjectID != p.ProjectID {
			continue
		}
		for commentID, c := range s.store.comments {
			if c.IssueID == issueID {
				delete(s.store.comments, commentID)
			}
		}
		delete(s.store.history, issueID)
		delete(s.store.issueLabels, issueID)
		delete(s.store.issues, issueID)
	}
	for labelID, l := range s.store.labels {
		if l.ProjectID == p.ProjectID {
			delete(s.store.labels, labelID)
		}
	}
	delete(s.store.memberships, p.ProjectID)
	delete(s.store.issueNumbers, p.ProjectID)
	delete(s.store.projects, p.ProjectID)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// requireLead はユーザーがプロジェクトのLEADであることを要求する。
// LEADでない場合は403を書き込みfalseを返す。
func (s *Server) requireLead(w http.ResponseWriter, projectID, userID int64) bool {
	role := s.store.roleOf(projectID, userID)
	if role == nil || *role != model.RoleLead {
		writeError(w, http.StatusForbidden, "Lead role required")
		return false
	}
	return true
}

// handleListMembers はGET /projects/{id}/membersを処理する。
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.lookupVisibleProject(r)
	if p == nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": p.ProjectID,
		"members":    s.store.listMembers(p.ProjectID),
	})
}

// handleAddMember はPOST /projects/{id}/membersを処理する。
// 既存メンバーの再追加は409を返す。
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Identifier string     `json:"identifier"`
		Role       model.Role `json:"role"`
	}
	if !decodeBody(r, &payload) || payload.Identifier == "" || payload.Role == "" {
		writeError(w, http.StatusBadRequest, "identifier and role are required")
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

	a := s.store.findByIdentifier(payload.Identifier)
	if a == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if s.store.roleOf(p.ProjectID, a.user.UserID) != nil {
		writeError(w, http.StatusConflict, "User is already a member")
		return
	}

	s.store.memberships[p.ProjectID][a.user.UserID] = membership{
		role:     payload.Role,
		joinedAt: timestamp(),
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id":    a.user.UserID,
		"project_id": p.ProjectID,
		"role":       payload.Role,
	})
}

// handleChangeMemberRole はPATCH /projects/{id}/members/{memberId}を処理する。
func (s *Server) handleChangeMemberRole(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Role model.Role `json:"role"`
	}
	if !decodeBody(r, &payload) || payload.Role == "" {
		writeError(w, http.StatusBadRequest, "role is required")
		return
	}

	memberID, ok := urlID(r, "memberId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid member id")
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

	m, found := s.store.memberships[p.ProjectID][memberID]
	if !found {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}

	m.role = payload.Role
	s.store.memberships[p.ProjectID][memberID] = m
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Role updated",
		"project_id": p.ProjectID,
		"user_id":    memberID,
		"new_role":   payload.Role,
	})
}

// handleRemoveMember はDELETE /projects/{id}/members/{memberId}を処理する。
func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	memberID, ok := urlID(r, "memberId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid member id")
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

	if _, found := s.store.memberships[p.ProjectID][memberID]; !found {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}

	delete(s.store.memberships[p.ProjectID], memberID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Member removed",
		"project_id": p.ProjectID,
		"user_id":    memberID,
	})
}
