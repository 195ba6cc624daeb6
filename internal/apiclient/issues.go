package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/itmsclient/internal/model"
)

// CreateIssuePayload は課題作成リクエストのボディ。
// Title以外は省略可能で、サーバー側のデフォルトが適用される。
type CreateIssuePayload struct {
	Title       string               `json:"title"`
	Description *string              `json:"description,omitempty"`
	Type        *model.IssueType     `json:"type,omitempty"`
	Priority    *model.IssuePriority `json:"priority,omitempty"`
	AssigneeID  *int64               `json:"assignee_id,omitempty"`
	DueDate     *string              `json:"due_date,omitempty"` // "YYYY-MM-DD"
	Labels      []int64              `json:"labels,omitempty"`   // label_id のリスト
}

// UpdateIssuePayload は課題のコアフィールド部分更新のボディ。
type UpdateIssuePayload struct {
	Title       *string              `json:"title,omitempty"`
	Description *string              `json:"description,omitempty"`
	Type        *model.IssueType     `json:"type,omitempty"`
	Priority    *model.IssuePriority `json:"priority,omitempty"`
	DueDate     *string              `json:"due_date,omitempty"`
	Status      *model.IssueStatus   `json:"status,omitempty"`
}

// UpdateAssigneePayload は担当者変更リクエストのボディ。
// AssigneeID をnilにすると未割り当てに戻る。
type UpdateAssigneePayload struct {
	AssigneeID *int64 `json:"assignee_id"`
}

// issueEnvelope は {"issue": ...} 形式のレスポンスラッパー。
type issueEnvelope struct {
	Issue *model.Issue `json:"issue"`
}

// ListProjectIssues はプロジェクトの課題一覧を取得する。
// GET /projects/{id}/issues。
func (c *Client) ListProjectIssues(ctx context.Context, projectID int64) ([]model.Issue, error) {
	var env struct {
		ProjectID int64         `json:"project_id"`
		Issues    []model.Issue `json:"issues"`
	}
	path := fmt.Sprintf("/projects/%d/issues", projectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Issues, nil
}

// CreateIssue はプロジェクトに課題を作成する。
// POST /projects/{id}/issues。課題番号はサーバーが採番する。
func (c *Client) CreateIssue(ctx context.Context, projectID int64, payload CreateIssuePayload) (*model.Issue, error) {
	var env issueEnvelope
	path := fmt.Sprintf("/projects/%d/issues", projectID)
	if err := c.do(ctx, http.MethodPost, path, payload, &env); err != nil {
		return nil, err
	}
	return env.Issue, nil
}

// GetIssue は課題を1件取得する。
// GET /issues/{id}。
func (c *Client) GetIssue(ctx context.Context, issueID int64) (*model.Issue, error) {
	var env issueEnvelope
	path := fmt.Sprintf("/issues/%d", issueID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Issue, nil
}

// UpdateIssue は課題のコアフィールドを部分更新する。
// PATCH /issues/{id}。変更はサーバー側で履歴に記録される。
func (c *Client) UpdateIssue(ctx context.Context, issueID int64, payload UpdateIssuePayload) (*model.Issue, error) {
	var env issueEnvelope
	path := fmt.Sprintf("/issues/%d", issueID)
	if err := c.do(ctx, http.MethodPatch, path, payload, &env); err != nil {
		return nil, err
	}
	return env.Issue, nil
}

// UpdateIssueAssignee は課題の担当者を変更する。
// PATCH /issues/{id}/assignee。
func (c *Client) UpdateIssueAssignee(ctx context.Context, issueID int64, payload UpdateAssigneePayload) (*model.Issue, error) {
	var env issueEnvelope
	path := fmt.Sprintf("/issues/%d/assignee", issueID)
	if err := c.do(ctx, http.MethodPatch, path, payload, &env); err != nil {
		return nil, err
	}
	return env.Issue, nil
}

// GetIssueHistory は課題のフィールド変更履歴を取得する。
// GET /issues/{id}/history。
func (c *Client) GetIssueHistory(ctx context.Context, issueID int64) ([]model.HistoryEntry, error) {
	var env struct {
		IssueID int64                `json:"issue_id"`
		History []model.HistoryEntry `json:"history"`
	}
	path := fmt.Sprintf("/issues/%d/history", issueID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.History, nil
}
