package itmstest

import (
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/itmsclient/internal/model"
)

// account はユーザーと平文パスワードの組。
// テストダブルのためハッシュ化は行わない。
type account struct {
	user     model.User
	password string
}

// membership はプロジェクトメンバーシップの1件。
type membership struct {
	role     model.Role
	joinedAt string
}

// store はITMS APIテストダブルのインメモリデータ。
// 排他制御はServer側のミューテックスが担う。
type store struct {
	users       map[int64]*account
	projects    map[int64]*model.Project
	memberships map[int64]map[int64]membership // projectID → userID → membership
	issues      map[int64]*model.Issue
	issueLabels map[int64][]int64 // issueID → labelID（付与順）
	labels      map[int64]*model.Label
	comments    map[int64]*model.Comment
	history     map[int64][]model.HistoryEntry // issueID → 変更履歴（古い順）

	nextUserID    int64
	nextProjectID int64
	nextIssueID   int64
	nextLabelID   int64
	nextCommentID int64
	nextChangeID  int64
	issueNumbers  map[int64]int64 // projectID → 採番済み課題番号
}

func newStore() *store {
	return &store{
		users:        make(map[int64]*account),
		projects:     make(map[int64]*model.Project),
		memberships:  make(map[int64]map[int64]membership),
		issues:       make(map[int64]*model.Issue),
		issueLabels:  make(map[int64][]int64),
		labels:       make(map[int64]*model.Label),
		comments:     make(map[int64]*model.Comment),
		history:      make(map[int64][]model.HistoryEntry),
		issueNumbers: make(map[int64]int64),
	}
}

// timestamp は現在時刻のISO文字列を返す。
func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// findByIdentifier はメールアドレスまたはユーザー名でユーザーを検索する。
func (st *store) findByIdentifier(identifier string) *account {
	for _, a := range st.users {
		if a.user.Email == identifier || a.user.Username == identifier {
			return a
		}
	}
	return nil
}

// identifierTaken はメールアドレスまたはユーザー名が使用済みかどうかを返す。
// excludeIDのユーザー自身は除外する（プロフィール更新時の自己衝突回避）。
func (st *store) identifierTaken(email, username string, excludeID int64) bool {
	for _, a := range st.users {
		if a.user.UserID == excludeID {
			continue
		}
		if email != "" && a.user.Email == email {
			return true
		}
		if username != "" && a.user.Username == username {
			return true
		}
	}
	return false
}

// createUser はユーザーを作成してIDを採番する。
func (st *store) createUser(email, username, password, firstName, lastName string) *model.User {
	st.nextUserID++
	a := &account{
		user: model.User{
			UserID:    st.nextUserID,
			Email:     email,
			Username:  username,
			FirstName: firstName,
			LastName:  lastName,
			CreatedAt: timestamp(),
		},
		password: password,
	}
	st.users[a.user.UserID] = a
	return &a.user
}

// projectKeyTaken はプロジェクトキーが使用済みかどうかを返す。
func (st *store) projectKeyTaken(key string, excludeID int64) bool {
	for _, p := range st.projects {
		if p.ProjectID != excludeID && p.ProjectKey == key {
			return true
		}
	}
	return false
}

// createProject はプロジェクトを作成し、作成者をLEADとして登録する。
func (st *store) createProject(key, name string, description *string, isPublic bool, createdBy int64) *model.Project {
	st.nextProjectID++
	creator := createdBy
	p := &model.Project{
		ProjectID:   st.nextProjectID,
		ProjectKey:  key,
		Name:        name,
		Description: description,
		IsPublic:    isPublic,
		CreatedBy:   &creator,
		CreatedAt:   timestamp(),
	}
	st.projects[p.ProjectID] = p
	st.memberships[p.ProjectID] = map[int64]membership{
		createdBy: {role: model.RoleLead, joinedAt: timestamp()},
	}
	return p
}

// roleOf はプロジェクトにおけるユーザーの役割を返す。非メンバーはnil。
func (st *store) roleOf(projectID, userID int64) *model.Role {
	members, ok := st.memberships[projectID]
	if !ok {
		return nil
	}
	m, ok := members[userID]
	if !ok {
		return nil
	}
	role := m.role
	return &role
}

// visibleTo はプロジェクトがユーザーに可視かどうかを返す。
// 公開プロジェクトは全ユーザーに、非公開はメンバーのみに可視。
func (st *store) visibleTo(p *model.Project, userID int64) bool {
	return p.IsPublic || st.roleOf(p.ProjectID, userID) != nil
}

// projectView は閲覧ユーザーの役割を埋めたプロジェクトのコピーを返す。
func (st *store) projectView(p *model.Project, userID int64) model.Project {
	view := *p
	view.UserRole = st.roleOf(p.ProjectID, userID)
	return view
}

// listMembers はプロジェクトのメンバー一覧を参加日時順で返す。
func (st *store) listMembers(projectID int64) []model.ProjectMember {
	members := make([]model.ProjectMember, 0)
	for userID, m := range st.memberships[projectID] {
		a, ok := st.users[userID]
		if !ok {
			continue
		}
		members = append(members, model.ProjectMember{
			UserID:    a.user.UserID,
			Username:  a.user.Username,
			FirstName: a.user.FirstName,
			LastName:  a.user.LastName,
			Role:      m.role,
			JoinedAt:  m.joinedAt,
		})
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].UserID < members[j].UserID
	})
	return members
}

// createIssue は課題を作成し、プロジェクト内で課題番号を採番する。
func (st *store) createIssue(projectID int64, title string, description *string, issueType model.IssueType, priority model.IssuePriority, assigneeID *int64, dueDate *string, reporterID int64) *model.Issue {
	st.nextIssueID++
	st.issueNumbers[projectID]++
	now := timestamp()
	issue := &model.Issue{
		IssueID:     st.nextIssueID,
		ProjectID:   projectID,
		IssueNumber: st.issueNumbers[projectID],
		Title:       title,
		Description: description,
		Type:        issueType,
		Status:      model.IssueStatusOpen,
		Priority:    priority,
		ReporterID:  reporterID,
		AssigneeID:  assigneeID,
		DueDate:     dueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	st.issues[issue.IssueID] = issue
	return issue
}

// issueView はラベルを埋めた課題のコピーを返す。
func (st *store) issueView(issue *model.Issue) model.Issue {
	view := *issue
	view.Labels = make([]model.Label, 0, len(st.issueLabels[issue.IssueID]))
	for _, labelID := range st.issueLabels[issue.IssueID] {
		if l, ok := st.labels[labelID]; ok {
			view.Labels = append(view.Labels, *l)
		}
	}
	return view
}

// recordChange は課題のフィールド変更を履歴に追記する。
// 値が変わらなかった場合は記録しない。
func (st *store) recordChange(issueID int64, changedBy int64, field string, oldValue, newValue *string) {
	if strPtrEqual(oldValue, newValue) {
		return
	}
	st.nextChangeID++
	by := changedBy
	st.history[issueID] = append(st.history[issueID], model.HistoryEntry{
		ChangeID:  st.nextChangeID,
		IssueID:   issueID,
		ChangedBy: &by,
		FieldName: field,
		OldValue:  oldValue,
		NewValue:  newValue,
		ChangedAt: timestamp(),
	})
}

// labelNameTaken はプロジェクト内でラベル名が使用済みかどうかを返す。
func (st *store) labelNameTaken(projectID int64, name string, excludeID int64) bool {
	for _, l := range st.labels {
		if l.ProjectID == projectID && l.LabelID != excludeID && strings.EqualFold(l.Name, name) {
			return true
		}
	}
	return false
}

// strPtrEqual は*stringの値としての等価性を判定する。
func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// strPtr は履歴記録用に値を*stringへ変換する。
func strPtr(v string) *string {
	return &v
}
