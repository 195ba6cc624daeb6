package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/itmsclient/internal/model"
)

// CreateProjectPayload はプロジェクト作成リクエストのボディ。
// IsPublic未指定時はサーバー側で公開扱いになる。
type CreateProjectPayload struct {
	ProjectKey  string  `json:"project_key"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	IsPublic    *bool   `json:"is_public,omitempty"`
}

// UpdateProjectPayload はプロジェクト部分更新のボディ。
type UpdateProjectPayload struct {
	ProjectKey  *string `json:"project_key,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// projectEnvelope は {"project": ...} 形式のレスポンスラッパー。
type projectEnvelope struct {
	Project *model.Project `json:"project"`
}

// ListProjects はログイン中ユーザーに可視な全プロジェクトを取得する。
// GET /projects。公開プロジェクトと所属プロジェクトが対象。
func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var env struct {
		Projects []model.Project `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &env); err != nil {
		return nil, err
	}
	return env.Projects, nil
}

// CreateProject はプロジェクトを作成し、作成者をLEADとして登録する。
// POST /projects。プロジェクトキーの重複は409を返す。
func (c *Client) CreateProject(ctx context.Context, payload CreateProjectPayload) (*model.Project, error) {
	var env projectEnvelope
	if err := c.do(ctx, http.MethodPost, "/projects", payload, &env); err != nil {
		return nil, err
	}
	return env.Project, nil
}

// GetProject はプロジェクトを1件取得する。
// GET /projects/{id}。不可視・不存在は404を返す。
func (c *Client) GetProject(ctx context.Context, projectID int64) (*model.Project, error) {
	var env projectEnvelope
	path := fmt.Sprintf("/projects/%d", projectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Project, nil
}

// UpdateProject はプロジェクトのキー・名前・説明を部分更新する。
// PATCH /projects/{id}。
func (c *Client) UpdateProject(ctx context.Context, projectID int64, payload UpdateProjectPayload) (*model.Project, error) {
	var env projectEnvelope
	path := fmt.Sprintf("/projects/%d", projectID)
	if err := c.do(ctx, http.MethodPatch, path, payload, &env); err != nil {
		return nil, err
	}
	return env.Project, nil
}

// UpdateProjectVisibility はプロジェクトの公開/非公開を切り替える。
// PATCH /projects/{id}/visibility。
func (c *Client) UpdateProjectVisibility(ctx context.Context, projectID int64, isPublic bool) (*model.Project, error) {
	var env projectEnvelope
	path := fmt.Sprintf("/projects/%d/visibility", projectID)
	payload := map[string]bool{"is_public": isPublic}
	if err := c.do(ctx, http.MethodPatch, path, payload, &env); err != nil {
		return nil, err
	}
	return env.Project, nil
}

// DeleteProject はプロジェクトを削除する。
// DELETE /projects/{id}。
func (c *Client) DeleteProject(ctx context.Context, projectID int64) error {
	path := fmt.Sprintf("/projects/%d", projectID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}
