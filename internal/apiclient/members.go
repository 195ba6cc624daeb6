package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/itmsclient/internal/model"
)

// AddProjectMemberPayload はメンバー追加リクエストのボディ。
// Identifier にはメールアドレスまたはユーザー名を指定できる。
type AddProjectMemberPayload struct {
	Identifier string     `json:"identifier"`
	Role       model.Role `json:"role"`
}

// ListProjectMembers はプロジェクトのメンバー一覧を取得する。
// GET /projects/{id}/members。
// レスポンスには表示用のユーザー情報が埋め込まれているため、
// 結果はidentity.Resolver.SeedFromMembersに渡してキャッシュをシードできる。
func (c *Client) ListProjectMembers(ctx context.Context, projectID int64) ([]model.ProjectMember, error) {
	var env struct {
		ProjectID int64                 `json:"project_id"`
		Members   []model.ProjectMember `json:"members"`
	}
	path := fmt.Sprintf("/projects/%d/members", projectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Members, nil
}

// AddProjectMember はプロジェクトにメンバーを追加する。
// POST /projects/{id}/members。既存メンバーの再追加は409を返す。
func (c *Client) AddProjectMember(ctx context.Context, projectID int64, payload AddProjectMemberPayload) error {
	path := fmt.Sprintf("/projects/%d/members", projectID)
	return c.do(ctx, http.MethodPost, path, payload, nil)
}

// ChangeProjectMemberRole はメンバーの役割を変更する。
// PATCH /projects/{id}/members/{memberId}。
func (c *Client) ChangeProjectMemberRole(ctx context.Context, projectID, memberID int64, role model.Role) error {
	path := fmt.Sprintf("/projects/%d/members/%d", projectID, memberID)
	payload := map[string]model.Role{"role": role}
	return c.do(ctx, http.MethodPatch, path, payload, nil)
}

// RemoveProjectMember はメンバーをプロジェクトから除外する。
// DELETE /projects/{id}/members/{memberId}。
func (c *Client) RemoveProjectMember(ctx context.Context, projectID, memberID int64) error {
	path := fmt.Sprintf("/projects/%d/members/%d", projectID, memberID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}
