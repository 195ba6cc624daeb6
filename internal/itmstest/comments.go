package itmstest

import (
	"net/http"
	"sort"

	"github.com/hitoshi/itmsclient/internal/model"
)

// handleListComments はGET /issues/{id}/commentsを処理する。
// 作成順で返す。
func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue := s.lookupIssue(r, currentUserID(r))
	if issue == nil {
		writeError(w, http.StatusNotFound, "Issue not found")
		return
	}

	comments := make([]model.Comment, 0)
	for _, c := range s.store.comments {
		if c.IssueID == issue.IssueID {
			comments = append(comments, *c)
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		return comments[i].CommentID < comments[j].CommentID
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"issue_id": issue.IssueID,
		"comments": comments,
	})
}

// handleAddComment はPOST /issues/{id}/commentsを処理する。
// 本文はサニタイズされてから保存される。
func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if !decodeBody(r, &payload) || payload.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
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

	s.store.nextCommentID++
	author := userID
	now := timestamp()
	c := &model.Comment{
		CommentID: s.store.nextCommentID,
		IssueID:   issue.IssueID,
		AuthorID:  &author,
		Content:   s.sanitizer.clean(payload.Content),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.store.comments[c.CommentID] = c

	writeJSON(w, http.StatusCreated, map[string]any{"comment": *c})
}

// lookupOwnComment はコメントを取得し、閲覧者が作者本人であることを確認する。
// 呼び出し元はs.muを保持していること。
func (s *Server) lookupOwnComment(r *http.Request, userID int64) *model.Comment {
	commentID, ok := urlID(r, "id")
	if !ok {
		return nil
	}
	c, found := s.store.comments[commentID]
	if !found || c.AuthorID == nil || *c.AuthorID != userID {
		return nil
	}
	return c
}

// handleUpdateComment はPATCH /comments/{id}を処理する。作者本人のみ可能。
func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if !decodeBody(r, &payload) || payload.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.lookupOwnComment(r, currentUserID(r))
	if c == nil {
		writeError(w, http.StatusNotFound, "Comment not found")
		return
	}

	c.Content = s.sanitizer.clean(payload.Content)
	c.UpdatedAt = timestamp()
	writeJSON(w, http.StatusOK, map[string]any{"comment": *c})
}

// handleDeleteComment はDELETE /comments/{id}を処理する。作者本人のみ可能。
func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.lookupOwnComment(r, currentUserID(r))
	if c == nil {
		writeError(w, http.StatusNotFound, "Comment not found")
		return
	}

	delete(s.store.comments, c.CommentID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
