package apiclient

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/hitoshi/itmsclient/internal/itmstest"
	"github.com/hitoshi/itmsclient/internal/model"
)

// newIntegrationClient はテストダブルに接続したClientを返す。
func newIntegrationClient(t *testing.T) (*itmstest.Server, *Client) {
	t.Helper()

	var buf bytes.Buffer
	double := itmstest.NewServer(newTestLogger(&buf))
	server := httptest.NewServer(double.Handler())
	t.Cleanup(server.Close)

	// httptest.Server.Client()を使わず素のクライアントを渡し、
	// NewClientがCookie Jarを補うことも合わせて確認する
	return double, NewClient(&http.Client{}, newTestLogger(&buf), server.URL)
}

func registerLogin(t *testing.T, c *Client, email, username string) *model.User {
	t.Helper()
	ctx := context.Background()

	if _, err := c.Register(ctx, RegisterPayload{
		Email: email, Username: username, Password: "secret",
		FirstName: "Hanako", LastName: "Suzuki",
	}); err != nil {
		t.Fatalf("Register がエラーを返した: %v", err)
	}
	user, err := c.Login(ctx, LoginPayload{Identifier: username, Password: "secret"})
	if err != nil {
		t.Fatalf("Login がエラーを返した: %v", err)
	}
	return user
}

func TestIntegration_AuthFlow(t *testing.T) {
	_, c := newIntegrationClient(t)
	ctx := context.Background()

	// 未ログインの/meは401
	if _, err := c.Me(ctx); !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("未ログインのMe = %v, want 401", err)
	}

	user := registerLogin(t, c, "hanako@example.com", "hanako")
	if user.Username != "hanako" {
		t.Errorf("Username = %q, want hanako", user.Username)
	}

	// セッションCookieが確立され、/meが完全プロフィールを返す
	me, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("Me がエラーを返した: %v", err)
	}
	if me.Email != "hanako@example.com" {
		t.Errorf("Email = %q, want hanako@example.com", me.Email)
	}
	if me.CreatedAt == "" {
		t.Error("Me のレスポンスにはcreated_atが含まれるべき")
	}

	// ログアウト後は401に戻る
	if _, err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout がエラーを返した: %v", err)
	}
	if _, err := c.Me(ctx); !IsStatus(err, http.StatusUnauthorized) {
		t.Errorf("ログアウト後のMe = %v, want 401", err)
	}
}

func TestIntegration_DuplicateRegister(t *testing.T) {
	_, c := newIntegrationClient(t)
	ctx := context.Background()

	registerLogin(t, c, "hanako@example.com", "hanako")

	_, err := c.Register(ctx, RegisterPayload{
		Email: "hanako@example.com", Username: "hanako2", Password: "p",
		FirstName: "H", LastName: "S",
	})
	if !IsStatus(err, http.StatusConflict) {
		t.Fatalf("重複登録のエラー = %v, want 409", err)
	}
	if httpErr, ok := AsHTTPError(err); !ok || httpErr.Message != "User already exists" {
		t.Errorf("Message = %v, want %q", err, "User already exists")
	}
}

func TestIntegration_ProjectIssueLifecycle(t *testing.T) {
	_, c := newIntegrationClient(t)
	ctx := context.Background()
	registerLogin(t, c, "hanako@example.com", "hanako")

	isPublic := false
	project, err := c.CreateProject(ctx, CreateProjectPayload{
		ProjectKey: "ITMS", Name: "Tracker", IsPublic: &isPublic,
	})
	if err != nil {
		t.Fatalf("CreateProject がエラーを返した: %v", err)
	}
	if project.ProjectKey != "ITMS" {
		t.Errorf("ProjectKey = %q, want ITMS", project.ProjectKey)
	}
	if project.UserRole == nil || *project.UserRole != model.RoleLead {
		t.Errorf("UserRole = %v, want LEAD", project.UserRole)
	}

	// 作成者はメンバー一覧に表示用アイデンティティ付きで現れる
	members, err := c.ListProjectMembers(ctx, project.ProjectID)
	if err != nil {
		t.Fatalf("ListProjectMembers がエラーを返した: %v", err)
	}
	if len(members) != 1 || members[0].Username != "hanako" {
		t.Fatalf("メンバー一覧 = %+v, want hanako のみ", members)
	}

	desc := `<p>repro steps</p><script>alert(1)</script>`
	priority := model.IssuePriorityHigh
	issue, err := c.CreateIssue(ctx, project.ProjectID, CreateIssuePayload{
		Title:       "crash on save",
		Description: &desc,
		Priority:    &priority,
	})
	if err != nil {
		t.Fatalf("CreateIssue がエラーを返した: %v", err)
	}
	if issue.IssueNumber != 1 {
		t.Errorf("IssueNumber = %d, want 1", issue.IssueNumber)
	}
	if issue.Priority != model.IssuePriorityHigh {
		t.Errorf("Priority = %q, want HIGH", issue.Priority)
	}
	// 説明はサーバー側でサニタイズされて返る
	if issue.Description == nil || strings.Contains(*issue.Description, "<script>") {
		t.Errorf("Description = %v, scriptタグが除去されるべき", issue.Description)
	}

	// ステータス更新と履歴の記録
	status := model.IssueStatusInProgress
	updated, err := c.UpdateIssue(ctx, issue.IssueID, UpdateIssuePayload{Status: &status})
	if err != nil {
		t.Fatalf("UpdateIssue がエラーを返した: %v", err)
	}
	if updated.Status != model.IssueStatusInProgress {
		t.Errorf("Status = %q, want IN_PROGRESS", updated.Status)
	}

	history, err := c.GetIssueHistory(ctx, issue.IssueID)
	if err != nil {
		t.Fatalf("GetIssueHistory がエラーを返した: %v", err)
	}
	if len(history) != 1 || history[0].FieldName != "status" {
		t.Errorf("履歴 = %+v, want statusの1件", history)
	}

	// 担当者の割り当て
	me, _ := c.Me(ctx)
	assigned, err := c.UpdateIssueAssignee(ctx, issue.IssueID, UpdateAssigneePayload{AssigneeID: &me.UserID})
	if err != nil {
		t.Fatalf("UpdateIssueAssignee がエラーを返した: %v", err)
	}
	if assigned.AssigneeID == nil || *assigned.AssigneeID != me.UserID {
		t.Errorf("AssigneeID = %v, want %d", assigned.AssigneeID, me.UserID)
	}
}

func TestIntegration_LabelsAndComments(t *testing.T) {
	_, c := newIntegrationClient(t)
	ctx := context.Background()
	registerLogin(t, c, "hanako@example.com", "hanako")

	project, err := c.CreateProject(ctx, CreateProjectPayload{ProjectKey: "LBL", Name: "Labels"})
	if err != nil {
		t.Fatalf("CreateProject がエラーを返した: %v", err)
	}
	issue, err := c.CreateIssue(ctx, project.ProjectID, CreateIssuePayload{Title: "labeled"})
	if err != nil {
		t.Fatalf("CreateIssue がエラーを返した: %v", err)
	}

	label, err := c.CreateProjectLabel(ctx, project.ProjectID, "bug")
	if err != nil {
		t.Fatalf("CreateProjectLabel がエラーを返した: %v", err)
	}
	if _, err := c.CreateProjectLabel(ctx, project.ProjectID, "bug"); !IsStatus(err, http.StatusConflict) {
		t.Errorf("重複ラベル作成のエラー = %v, want 409", err)
	}

	withLabel, err := c.AddLabelToIssue(ctx, issue.IssueID, label.LabelID)
	if err != nil {
		t.Fatalf("AddLabelToIssue がエラーを返した: %v", err)
	}
	if len(withLabel.Labels) != 1 || withLabel.Labels[0].Name != "bug" {
		t.Errorf("Labels = %+v, want [bug]", withLabel.Labels)
	}

	comment, err := c.AddComment(ctx, issue.IssueID, "looks like a regression")
	if err != nil {
		t.Fatalf("AddComment がエラーを返した: %v", err)
	}
	edited, err := c.UpdateComment(ctx, comment.CommentID, "confirmed regression")
	if err != nil {
		t.Fatalf("UpdateComment がエラーを返した: %v", err)
	}
	if edited.Content != "confirmed regression" {
		t.Errorf("Content = %q, want %q", edited.Content, "confirmed regression")
	}

	comments, err := c.ListIssueComments(ctx, issue.IssueID)
	if err != nil {
		t.Fatalf("ListIssueComments がエラーを返した: %v", err)
	}
	if len(comments) != 1 {
		t.Fatalf("コメント数 = %d, want 1", len(comments))
	}

	if err := c.DeleteComment(ctx, comment.CommentID); err != nil {
		t.Fatalf("DeleteComment がエラーを返した: %v", err)
	}
	comments, _ = c.ListIssueComments(ctx, issue.IssueID)
	if len(comments) != 0 {
		t.Errorf("削除後のコメント数 = %d, want 0", len(comments))
	}
}

func TestIntegration_GetUserSummary(t *testing.T) {
	_, c := newIntegrationClient(t)
	ctx := context.Background()
	me := registerLogin(t, c, "hanako@example.com", "hanako")

	summary, err := c.GetUser(ctx, me.UserID)
	if err != nil {
		t.Fatalf("GetUser がエラーを返した: %v", err)
	}
	if summary.Username != "hanako" || summary.FirstName != "Hanako" {
		t.Errorf("summary = %+v, want hanako / Hanako", summary)
	}

	if _, err := c.GetUser(ctx, 999); !IsStatus(err, http.StatusNotFound) {
		t.Errorf("不在ユーザーのエラー = %v, want 404", err)
	}
}

func TestIntegration_RateLimited(t *testing.T) {
	double, c := newIntegrationClient(t)
	ctx := context.Background()
	registerLogin(t, c, "hanako@example.com", "hanako")

	double.SetRateLimit(rate.Limit(0.001), 1)

	if _, err := c.Me(ctx); err != nil {
		t.Fatalf("バースト内のMe がエラーを返した: %v", err)
	}
	_, err := c.Me(ctx)
	if !IsStatus(err, http.StatusTooManyRequests) {
		t.Fatalf("バースト超過のエラー = %v, want 429", err)
	}
	if httpErr, ok := AsHTTPError(err); !ok || httpErr.Message != "Too many requests" {
		t.Errorf("Message = %v, want %q", err, "Too many requests")
	}
}
