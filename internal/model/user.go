// Package model はITMS APIのドメインモデルを定義する。
// フィールドはサーバーのJSON表現（snake_case）に対応する。
package model

// User はログイン中ユーザーの完全なプロフィールを表す。
// GET /me および PATCH /me のレスポンスに含まれる。
// 日時はサーバーが返すISO文字列をそのまま保持する。
type User struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// UserSummary は表示用の最小限の公開ユーザー情報を表す。
// GET /users/{id} のレスポンスおよびアイデンティティキャッシュのエントリとして使用する。
type UserSummary struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Summary はUserからUserSummaryを抽出する。
func (u *User) Summary() UserSummary {
	return UserSummary{
		UserID:    u.UserID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
