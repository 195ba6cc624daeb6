package model

// IssueType は課題の種別を表す。
type IssueType string

const (
	IssueTypeBug     IssueType = "BUG"
	IssueTypeFeature IssueType = "FEATURE"
	IssueTypeTask    IssueType = "TASK"
	IssueTypeOther   IssueType = "OTHER"
)

// IssueStatus は課題のステータスを表す。
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "OPEN"
	IssueStatusInProgress IssueStatus = "IN_PROGRESS"
	IssueStatusResolved   IssueStatus = "RESOLVED"
	IssueStatusClosed     IssueStatus = "CLOSED"
)

// IssuePriority は課題の優先度を表す。
type IssuePriority string

const (
	IssuePriorityLow      IssuePriority = "LOW"
	IssuePriorityMedium   IssuePriority = "MEDIUM"
	IssuePriorityHigh     IssuePriority = "HIGH"
	IssuePriorityCritical IssuePriority = "CRITICAL"
)

// Issue は課題を表す。
// ReporterID と AssigneeID は疎な数値ユーザー参照であり、
// 表示用アイデンティティへの解決はidentityパッケージが担う。
// AssigneeID は未割り当ての場合nil。
type Issue struct {
	IssueID     int64         `json:"issue_id"`
	ProjectID   int64         `json:"project_id"`
	IssueNumber int64         `json:"issue_number"`
	Title       string        `json:"title"`
	Description *string       `json:"description"`
	Type        IssueType     `json:"type"`
	Status      IssueStatus   `json:"status"`
	Priority    IssuePriority `json:"priority"`
	ReporterID  int64         `json:"reporter_id"`
	AssigneeID  *int64        `json:"assignee_id"`
	DueDate     *string       `json:"due_date"` // "YYYY-MM-DD"
	CreatedAt   string        `json:"created_at,omitempty"`
	UpdatedAt   string        `json:"updated_at,omitempty"`
	Labels      []Label       `json:"labels,omitempty"`
}

// Label はプロジェクト内で課題に付与できるラベルを表す。
type Label struct {
	LabelID   int64  `json:"label_id"`
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
}

// HistoryEntry は課題のフィールド変更履歴の1件を表す。
// ChangedBy は変更者のユーザーIDで、システムによる変更の場合nil。
type HistoryEntry struct {
	ChangeID  int64   `json:"change_id"`
	IssueID   int64   `json:"issue_id"`
	ChangedBy *int64  `json:"changed_by"`
	FieldName string  `json:"field_name"`
	OldValue  *string `json:"old_value"`
	NewValue  *string `json:"new_value"`
	ChangedAt string  `json:"changed_at,omitempty"`
}
