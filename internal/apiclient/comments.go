package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/itmsclient/internal/model"
)

// commentEnvelope は {"comment": ...} 形式のレスポンスラッパー。
type commentEnvelope struct {
	Comment *model.Comment `json:"comment"`
}

// ListIssueComments は課題のコメント一覧を取得する。
// GET /issues/{id}/comments。
func (c *Client) ListIssueComments(ctx context.Context, issueID int64) ([]model.Comment, error) {
	var env struct {
		IssueID  int64           `json:"issue_id"`
		Comments []model.Comment `json:"comments"`
	}
	path := fmt.Sprintf("/issues/%d/comments", issueID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Comments, nil
}

// AddComment は課題にコメントを追加する。
// POST /issues/{id}/comments。
func (c *Client) AddComment(ctx context.Context, issueID int64, content string) (*model.Comment, error) {
	var env commentEnvelope
	path := fmt.Sprintf("/issues/%d/comments", issueID)
	payload := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, path, payload, &env); err != nil {
		return nil, err
	}
	return env.Comment, nil
}

// UpdateComment はコメント本文を更新する。
// PATCH /comments/{id}。
func (c *Client) UpdateComment(ctx context.Context, commentID int64, content string) (*model.Comment, error) {
	var env commentEnvelope
	path := fmt.Sprintf("/comments/%d", commentID)
	payload := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPatch, path, payload, &env); err != nil {
		return nil, err
	}
	return env.Comment, nil
}

// DeleteComment はコメントを削除する。
// DELETE /comments/{id}。
func (c *Client) DeleteComment(ctx context.Context, commentID int64) error {
	path := fmt.Sprintf("/comments/%d", commentID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}
