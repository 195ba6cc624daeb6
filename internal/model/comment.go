package model

// Comment は課題へのコメントを表す。
// AuthorID は退会済みユーザーのコメントの場合nil。
type Comment struct {
	CommentID int64  `json:"comment_id"`
	IssueID   int64  `json:"issue_id"`
	AuthorID  *int64 `json:"author_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}
