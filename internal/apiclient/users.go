package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/itmsclient/internal/model"
)

// GetUser はユーザーIDから公開アイデンティティ情報を取得する。
// GET /users/{id}。未知のIDは404を返す。
// identityパッケージのリゾルバー以外からの直接呼び出しは
// キャッシュを迂回するため推奨しない。
func (c *Client) GetUser(ctx context.Context, userID int64) (model.UserSummary, error) {
	var env struct {
		User model.UserSummary `json:"user"`
	}
	path := fmt.Sprintf("/users/%d", userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return model.UserSummary{}, err
	}
	return env.User, nil
}
