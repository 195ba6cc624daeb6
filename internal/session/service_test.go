package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/hitoshi/itmsclient/internal/apiclient"
	"github.com/hitoshi/itmsclient/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func testUser() *model.User {
	return &model.User{
		UserID:    1,
		Email:     "taro@example.com",
		Username:  "taro",
		FirstName: "Taro",
		LastName:  "Yamada",
		CreatedAt: "2025-01-01T00:00:00Z",
	}
}

// fakeAPI はsession.APIのテスト用実装。
// 各操作の戻り値を差し替えられ、呼び出し回数を記録する。
type fakeAPI struct {
	mu sync.Mutex

	loginErr    error
	logoutErr   error
	meUser      *model.User
	meErr       error
	updateErr   error
	registerErr error

	loginCalls    int
	logoutCalls   int
	meCalls       int
	updateCalls   int
	registerCalls int

	// nilでない場合、Me呼び出し時にコールバックを実行する（割り込み用）
	onMe func()
}

func (f *fakeAPI) Login(ctx context.Context, payload apiclient.LoginPayload) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return testUser(), nil
}

func (f *fakeAPI) Logout(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	if f.logoutErr != nil {
		return "", f.logoutErr
	}
	return "Logged out", nil
}

func (f *fakeAPI) Me(ctx context.Context) (*model.User, error) {
	f.mu.Lock()
	cb := f.onMe
	f.meCalls++
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meErr != nil {
		return nil, f.meErr
	}
	if f.meUser != nil {
		return f.meUser, nil
	}
	return testUser(), nil
}

func (f *fakeAPI) UpdateMe(ctx context.Context, payload apiclient.UpdateMePayload) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return testUser(), nil
}

func (f *fakeAPI) Register(ctx context.Context, payload apiclient.RegisterPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	if f.registerErr != nil {
		return "", f.registerErr
	}
	return "User created", nil
}

func unauthorizedErr() error {
	return &apiclient.HTTPError{Status: 401, Message: "Authentication required"}
}

func TestNew_NilAPI_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("nil APIでpanicすべき")
		}
	}()
	var buf bytes.Buffer
	New(nil, newTestLogger(&buf))
}

func TestNew_InitialStateIsUninitialized(t *testing.T) {
	var buf bytes.Buffer
	s := New(&fakeAPI{}, newTestLogger(&buf))

	snap := s.Snapshot()
	if snap.Status != StatusUninitialized {
		t.Errorf("初期状態 = %s, want %s", snap.Status, StatusUninitialized)
	}
	if snap.User != nil {
		t.Error("初期状態のUserはnilであるべき")
	}
}

func TestInit_ActiveSession_BecomesAuthenticated(t *testing.T) {
	var buf bytes.Buffer
	s := New(&fakeAPI{}, newTestLogger(&buf))

	s.Init(context.Background())

	snap := s.Snapshot()
	if snap.Status != StatusAuthenticated {
		t.Fatalf("状態 = %s, want %s", snap.Status, StatusAuthenticated)
	}
	if snap.User == nil || snap.User.Username != "taro" {
		t.Errorf("User = %+v, want taro", snap.User)
	}
}

func TestInit_Unauthorized_BecomesAnonymousSilently(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{meErr: unauthorizedErr()}
	s := New(api, newTestLogger(&buf))

	s.Init(context.Background())

	snap := s.Snapshot()
	if snap.Status != StatusAnonymous {
		t.Fatalf("状態 = %s, want %s", snap.Status, StatusAnonymous)
	}

	// 401は未ログインの正常系であり、エラーログは出力しない
	if bytes.Contains(buf.Bytes(), []byte("ERROR")) {
		t.Errorf("401でERRORログが出力されるべきではない: %s", buf.String())
	}
}

func TestInit_UnexpectedError_BecomesAnonymousWithLog(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{meErr: &apiclient.NetworkError{Method: "GET", URL: "http://x/me", Err: errors.New("connection refused")}}
	s := New(api, newTestLogger(&buf))

	s.Init(context.Background())

	snap := s.Snapshot()
	if snap.Status != StatusAnonymous {
		t.Fatalf("状態 = %s, want %s", snap.Status, StatusAnonymous)
	}

	// 想定外の失敗を認証済みとして扱わず、ログには記録する
	if !bytes.Contains(buf.Bytes(), []byte("ERROR")) {
		t.Errorf("想定外エラー時にERRORログが記録されるべき: %s", buf.String())
	}
}

func TestLogin_Success_FetchesFullProfile(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{}
	s := New(api, newTestLogger(&buf))

	if err := s.Login(context.Background(), "taro", "secret"); err != nil {
		t.Fatalf("Login がエラーを返した: %v", err)
	}

	snap := s.Snapshot()
	if snap.Status != StatusAuthenticated {
		t.Errorf("状態 = %s, want %s", snap.Status, StatusAuthenticated)
	}
	// ログインレスポンスではなく /me の完全なプロフィールを採用する
	if api.meCalls != 1 {
		t.Errorf("Me呼び出し回数 = %d, want 1", api.meCalls)
	}
}

func TestLogin_MissingIdentifier_ReturnsValidationError(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{}
	s := New(api, newTestLogger(&buf))

	err := s.Login(context.Background(), "  ", "secret")
	if !model.IsValidationError(err) {
		t.Fatalf("ValidationError であるべき: got %v", err)
	}

	// バリデーション失敗時はAPIを呼ばず、状態も変えない
	if api.loginCalls != 0 {
		t.Errorf("Login APIが呼ばれるべきではない: %d回", api.loginCalls)
	}
	if s.Snapshot().Status != StatusUninitialized {
		t.Errorf("状態が変化すべきではない: %s", s.Snapshot().Status)
	}
}

func TestLogin_MissingPassword_ReturnsValidationError(t *testing.T) {
	var buf bytes.Buffer
	s := New(&fakeAPI{}, newTestLogger(&buf))

	err := s.Login(context.Background(), "taro", "")
	if !model.IsValidationError(err) {
		t.Fatalf("ValidationError であるべき: got %v", err)
	}
}

func TestLogin_InvalidCredentials_BecomesAnonymousAndPropagates(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{loginErr: &apiclient.HTTPError{Status: 401, Message: "Invalid credentials"}}
	s := New(api, newTestLogger(&buf))

	err := s.Login(context.Background(), "taro", "wrong")
	if !apiclient.IsStatus(err, 401) {
		t.Fatalf("401のHTTPErrorが伝播されるべき: got %v", err)
	}

	if s.Snapshot().Status != StatusAnonymous {
		t.Errorf("状態 = %s, want %s", s.Snapshot().Status, StatusAnonymous)
	}
}

func TestLogin_ProfileFetchFails_BecomesAnonymous(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{meErr: errors.New("profile fetch failed")}
	s := New(api, newTestLogger(&buf))

	err := s.Login(context.Background(), "taro", "secret")
	if err == nil {
		t.Fatal("プロフィール取得失敗時はエラーが伝播されるべき")
	}
	if s.Snapshot().Status != StatusAnonymous {
		t.Errorf("状態 = %s, want %s", s.Snapshot().Status, StatusAnonymous)
	}
}

func TestLogout_Success_BecomesAnonymous(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{}
	s := New(api, newTestLogger(&buf))
	s.Init(context.Background())

	s.Logout(context.Background())

	snap := s.Snapshot()
	if snap.Status != StatusAnonymous {
		t.Errorf("状態 = %s, want %s", snap.Status, StatusAnonymous)
	}
	if snap.User != nil {
		t.Error("ログアウト後のUserはnilであるべき")
	}
}

func TestLogout_ServerError_StillBecomesAnonymous(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{logoutErr: errors.New("server unavailable")}
	s := New(api, newTestLogger(&buf))
	s.Init(context.Background())

	s.Logout(context.Background())

	// サーバー呼び出しの結果に関わらずローカルはAnonymousに遷移する
	if s.Snapshot().Status != StatusAnonymous {
		t.Errorf("状態 = %s, want %s", s.Snapshot().Status, StatusAnonymous)
	}
	if !bytes.Contains(buf.Bytes(), []byte("ERROR")) {
		t.Errorf("ログアウト失敗はERRORログに記録されるべき: %s", buf.String())
	}
}

func TestRefresh_Unauthorized_DemotesToAnonymousWithoutError(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{}
	s := New(api, newTestLogger(&buf))
	s.Init(context.Background())

	api.mu.Lock()
	api.meErr = unauthorizedErr()
	api.mu.Unlock()

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("401でのRefreshはエラーを返すべきではない: %v", err)
	}
	if s.Snapshot().Status != StatusAnonymous {
		t.Errorf("状態 = %s, want %s", s.Snapshot().Status, StatusAnonymous)
	}
}

func TestRefresh_NetworkError_RestoresPreviousState(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{}
	s := New(api, newTestLogger(&buf))
	s.Init(context.Background())

	api.mu.Lock()
	api.meErr = &apiclient.NetworkError{Method: "GET", URL: "http://x/me", Err: errors.New("timeout")}
	api.mu.Unlock()

	err := s.Refresh(context.Background())
	if err == nil {
		t.Fatal("ネットワークエラーは伝播されるべき")
	}

	// 一時的な失敗で認証済み状態を破棄しない
	snap := s.Snapshot()
	if snap.Status != StatusAuthenticated {
		t.Errorf("状態 = %s, want %s（操作前の状態を復元）", snap.Status, StatusAuthenticated)
	}
	if snap.User == nil || snap.User.Username != "taro" {
		t.Errorf("復元されたUser = %+v, want taro", snap.User)
	}
}

func TestUpdateProfile_NoFields_ReturnsValidationError(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{}
	s := New(api, newTestLogger(&buf))
	s.Init(context.Background())

	err := s.UpdateProfile(context.Background(), apiclient.UpdateMePayload{})
	if !model.IsValidationError(err) {
		t.Fatalf("ValidationError であるべき: got %v", err)
	}
	if api.updateCalls != 0 {
		t.Errorf("UpdateMe APIが呼ばれるべきではない: %d回", api.updateCalls)
	}
}

func TestUpdateProfile_UpdateFails_RestoresPreviousState(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{}
	s := New(api, newTestLogger(&buf))
	s.Init(context.Background())

	api.mu.Lock()
	api.updateErr = &apiclient.HTTPError{Status: 409, Message: "Username already in use"}
	api.mu.Unlock()

	username := "newname"
	err := s.UpdateProfile(context.Background(), apiclient.UpdateMePayload{Username: &username})
	if !apiclient.IsStatus(err, 409) {
		t.Fatalf("409のHTTPErrorが伝播されるべき: got %v", err)
	}

	if s.Snapshot().Status != StatusAuthenticated {
		t.Errorf("状態 = %s, want %s", s.Snapshot().Status, StatusAuthenticated)
	}
}

func TestUpdateProfile_Success_ResyncsFromServer(t *testing.T) {
	var buf bytes.Buffer
	updated := testUser()
	updated.Username = "taro2"
	api := &fakeAPI{}
	s := New(api, newTestLogger(&buf))
	s.Init(context.Background())

	api.mu.Lock()
	api.meUser = updated
	api.mu.Unlock()

	username := "taro2"
	if err := s.UpdateProfile(context.Background(), apiclient.UpdateMePayload{Username: &username}); err != nil {
		t.Fatalf("UpdateProfile がエラーを返した: %v", err)
	}

	// 送信したパッチではなくサーバーが確定した値が反映される
	snap := s.Snapshot()
	if snap.User == nil || snap.User.Username != "taro2" {
		t.Errorf("User = %+v, want taro2", snap.User)
	}
}

func TestRegister_MissingField_ReturnsValidationError(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{}
	s := New(api, newTestLogger(&buf))

	err := s.Register(context.Background(), apiclient.RegisterPayload{
		Email:    "taro@example.com",
		Username: "taro",
		Password: "secret",
		// first_name / last_name が欠落
	})
	if !model.IsValidationError(err) {
		t.Fatalf("ValidationError であるべき: got %v", err)
	}
	if api.registerCalls != 0 {
		t.Errorf("Register APIが呼ばれるべきではない: %d回", api.registerCalls)
	}
}

func TestRegister_Success_ComposesRegisterLoginMe(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{}
	s := New(api, newTestLogger(&buf))

	err := s.Register(context.Background(), apiclient.RegisterPayload{
		Email:     "taro@example.com",
		Username:  "taro",
		Password:  "secret",
		FirstName: "Taro",
		LastName:  "Yamada",
	})
	if err != nil {
		t.Fatalf("Register がエラーを返した: %v", err)
	}

	if api.registerCalls != 1 || api.loginCalls != 1 || api.meCalls != 1 {
		t.Errorf("呼び出し回数 register=%d login=%d me=%d, want 1/1/1",
			api.registerCalls, api.loginCalls, api.meCalls)
	}
	if s.Snapshot().Status != StatusAuthenticated {
		t.Errorf("状態 = %s, want %s", s.Snapshot().Status, StatusAuthenticated)
	}
}

func TestRegister_DuplicateIdentity_BecomesAnonymousAndPropagates(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{registerErr: &apiclient.HTTPError{Status: 409, Message: "User already exists"}}
	s := New(api, newTestLogger(&buf))

	err := s.Register(context.Background(), apiclient.RegisterPayload{
		Email:     "taro@example.com",
		Username:  "taro",
		Password:  "secret",
		FirstName: "Taro",
		LastName:  "Yamada",
	})
	if !apiclient.IsStatus(err, 409) {
		t.Fatalf("409のHTTPErrorが伝播されるべき: got %v", err)
	}

	// 後続のログインは中断される
	if api.loginCalls != 0 {
		t.Errorf("Login APIが呼ばれるべきではない: %d回", api.loginCalls)
	}
	if s.Snapshot().Status != StatusAnonymous {
		t.Errorf("状態 = %s, want %s", s.Snapshot().Status, StatusAnonymous)
	}
}

func TestStaleOperation_DoesNotOverwriteNewerState(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{}
	s := New(api, newTestLogger(&buf))

	// Refresh実行中（Me呼び出し中）にLogoutが割り込む
	done := make(chan struct{})
	api.onMe = func() {
		api.mu.Lock()
		api.onMe = nil
		api.mu.Unlock()
		s.Logout(context.Background())
		close(done)
	}

	_ = s.Refresh(context.Background())
	<-done

	// 古いRefreshの成功結果がLogout後の状態を上書きしてはならない
	if s.Snapshot().Status != StatusAnonymous {
		t.Errorf("状態 = %s, want %s（古い操作の結果は破棄）", s.Snapshot().Status, StatusAnonymous)
	}
}

func TestOperations_NeverLeaveLoadingState(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{
		loginErr:    errors.New("boom"),
		logoutErr:   errors.New("boom"),
		meErr:       errors.New("boom"),
		updateErr:   errors.New("boom"),
		registerErr: errors.New("boom"),
	}
	s := New(api, newTestLogger(&buf))

	ctx := context.Background()
	s.Init(ctx)
	_ = s.Login(ctx, "taro", "secret")
	s.Logout(ctx)
	_ = s.Refresh(ctx)
	username := "x"
	_ = s.UpdateProfile(ctx, apiclient.UpdateMePayload{Username: &username})
	_ = s.Register(ctx, apiclient.RegisterPayload{
		Email: "a@example.com", Username: "a", Password: "p", FirstName: "A", LastName: "B",
	})

	snap := s.Snapshot()
	if snap.Status == StatusLoading {
		t.Error("全操作の完了後にLoadingのまま放置されてはならない")
	}
}

func TestSubscribe_ReceivesTransitions(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{}
	s := New(api, newTestLogger(&buf))

	ch := s.Subscribe()
	s.Init(context.Background())

	// Loading → Authenticated の2遷移を受信する
	first := <-ch
	if first.Status != StatusLoading {
		t.Errorf("1つ目の通知 = %s, want %s", first.Status, StatusLoading)
	}
	second := <-ch
	if second.Status != StatusAuthenticated {
		t.Errorf("2つ目の通知 = %s, want %s", second.Status, StatusAuthenticated)
	}
}

func TestSnapshot_ReturnsCopyOfUser(t *testing.T) {
	var buf bytes.Buffer
	s := New(&fakeAPI{}, newTestLogger(&buf))
	s.Init(context.Background())

	snap := s.Snapshot()
	snap.User.Username = "mutated"

	// 呼び出し元の変更が内部状態に影響しないこと
	if s.Snapshot().User.Username != "taro" {
		t.Error("SnapshotのUserは内部状態のコピーであるべき")
	}
}
