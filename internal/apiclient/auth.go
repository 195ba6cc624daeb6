package apiclient

import (
	"context"
	"net/http"

	"github.com/hitoshi/itmsclient/internal/model"
)

// RegisterPayload はアカウント登録リクエストのボディ。全フィールド必須。
type RegisterPayload struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LoginPayload はログインリクエストのボディ。
// Identifier にはメールアドレスまたはユーザー名を指定できる。
type LoginPayload struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// UpdateMePayload はプロフィール部分更新のボディ。
// nilのフィールドは送信されず、サーバー側で変更されない。
// メールアドレスは変更できない。
type UpdateMePayload struct {
	Username  *string `json:"username,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// userEnvelope は {"user": ...} 形式のレスポンスラッパー。
type userEnvelope struct {
	User *model.User `json:"user"`
}

// messageEnvelope は {"message": ...} 形式のレスポンスラッパー。
type messageEnvelope struct {
	Message string `json:"message"`
}

// Register はアカウントを作成する。
// POST /auth/register。重複するメールアドレス/ユーザー名は409を返す。
func (c *Client) Register(ctx context.Context, payload RegisterPayload) (string, error) {
	var env messageEnvelope
	if err := c.do(ctx, http.MethodPost, "/auth/register", payload, &env); err != nil {
		return "", err
	}
	return env.Message, nil
}

// Login はログインしセッションCookieを確立する。
// POST /auth/login。資格情報不一致は401を返す。
// レスポンスのuserにはcreated_atが含まれない場合がある。
func (c *Client) Login(ctx context.Context, payload LoginPayload) (*model.User, error) {
	var env userEnvelope
	if err := c.do(ctx, http.MethodPost, "/auth/login", payload, &env); err != nil {
		return nil, err
	}
	return env.User, nil
}

// Logout はサーバー側のセッションを破棄する。
// POST /auth/logout。
func (c *Client) Logout(ctx context.Context) (string, error) {
	var env messageEnvelope
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, &env); err != nil {
		return "", err
	}
	return env.Message, nil
}

// Me は現在ログイン中のユーザーの完全なプロフィールを取得する。
// GET /me。未ログインは401を返す。
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var env userEnvelope
	if err := c.do(ctx, http.MethodGet, "/me", nil, &env); err != nil {
		return nil, err
	}
	return env.User, nil
}

// UpdateMe はプロフィールの可変フィールドを部分更新する。
// PATCH /me。ユーザー名の重複は409を返す。
func (c *Client) UpdateMe(ctx context.Context, payload UpdateMePayload) (*model.User, error) {
	var env userEnvelope
	if err := c.do(ctx, http.MethodPatch, "/me", payload, &env); err != nil {
		return nil, err
	}
	return env.User, nil
}

// Health はサーバーの死活を確認する。
// GET /health。
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
