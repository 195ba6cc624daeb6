package model

// Role はプロジェクトメンバーの役割を表す。
type Role string

const (
	// RoleLead はプロジェクトリーダー。全操作が可能。
	RoleLead Role = "LEAD"
	// RoleDeveloper は開発者。課題の作成・更新が可能。
	RoleDeveloper Role = "DEVELOPER"
	// RoleViewer は閲覧者。読み取りのみ可能。
	RoleViewer Role = "VIEWER"
)

// Project はプロジェクトを表す。
// UserRole はログイン中ユーザーの役割で、非メンバーの場合はnil。
type Project struct {
	ProjectID   int64   `json:"project_id"`
	ProjectKey  string  `json:"project_key"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	IsPublic    bool    `json:"is_public"`
	CreatedBy   *int64  `json:"created_by"`
	CreatedAt   string  `json:"created_at,omitempty"`
	UserRole    *Role   `json:"user_role,omitempty"`
}

// ProjectMember はプロジェクトメンバーを表す。
// メンバー一覧レスポンスにはユーザーの表示情報が埋め込まれており、
// アイデンティティキャッシュのシードに利用できる。
type ProjectMember struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
	JoinedAt  string `json:"joined_at,omitempty"`
}

// Summary はProjectMemberからUserSummaryを抽出する。
func (m *ProjectMember) Summary() UserSummary {
	return UserSummary{
		UserID:    m.UserID,
		Username:  m.Username,
		FirstName: m.FirstName,
		LastName:  m.LastName,
	}
}
