package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/itmsclient/internal/model"
)

// labelEnvelope は {"label": ...} 形式のレスポンスラッパー。
type labelEnvelope struct {
	Label *model.Label `json:"label"`
}

// ListProjectLabels はプロジェクトのラベル一覧を取得する。
// GET /projects/{id}/labels。
func (c *Client) ListProjectLabels(ctx context.Context, projectID int64) ([]model.Label, error) {
	var env struct {
		ProjectID int64         `json:"project_id"`
		Labels    []model.Label `json:"labels"`
	}
	path := fmt.Sprintf("/projects/%d/labels", projectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Labels, nil
}

// CreateProjectLabel はプロジェクトにラベルを作成する。
// POST /projects/{id}/labels。同名ラベルは409を返す。
func (c *Client) CreateProjectLabel(ctx context.Context, projectID int64, name string) (*model.Label, error) {
	var env labelEnvelope
	path := fmt.Sprintf("/projects/%d/labels", projectID)
	payload := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, path, payload, &env); err != nil {
		return nil, err
	}
	return env.Label, nil
}

// UpdateProjectLabel はラベル名を変更する。
// PATCH /projects/{id}/labels/{labelId}。
func (c *Client) UpdateProjectLabel(ctx context.Context, projectID, labelID int64, name string) error {
	path := fmt.Sprintf("/projects/%d/labels/%d", projectID, labelID)
	payload := map[string]string{"name": name}
	return c.do(ctx, http.MethodPatch, path, payload, nil)
}

// DeleteProjectLabel はラベルを削除する。課題への付与も同時に解除される。
// DELETE /projects/{id}/labels/{labelId}。
func (c *Client) DeleteProjectLabel(ctx context.Context, projectID, labelID int64) error {
	path := fmt.Sprintf("/projects/%d/labels/%d", projectID, labelID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// AddLabelToIssue は課題にラベルを付与する。
// POST /issues/{id}/labels。
func (c *Client) AddLabelToIssue(ctx context.Context, issueID, labelID int64) (*model.Issue, error) {
	var env issueEnvelope
	path := fmt.Sprintf("/issues/%d/labels", issueID)
	payload := map[string]int64{"label_id": labelID}
	if err := c.do(ctx, http.MethodPost, path, payload, &env); err != nil {
		return nil, err
	}
	return env.Issue, nil
}

// RemoveLabelFromIssue は課題からラベルを外す。
// DELETE /issues/{id}/labels/{labelId}。
func (c *Client) RemoveLabelFromIssue(ctx context.Context, issueID, labelID int64) error {
	path := fmt.Sprintf("/issues/%d/labels/%d", issueID, labelID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}
