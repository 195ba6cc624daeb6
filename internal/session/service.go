// Package session はアプリケーション唯一の「誰がログインしているか」を管理する
// セッション状態マシンを提供する。
// 全ての操作は完了時に必ず終端状態（Authenticated / Anonymous）に到達し、
// Loadingのまま放置されることはない。
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/itmsclient/internal/apiclient"
	"github.com/hitoshi/itmsclient/internal/model"
)

// Status はセッションの状態を表す。
type Status string

const (
	// StatusUninitialized は最初のセッション確認前の状態。
	StatusUninitialized Status = "uninitialized"
	// StatusLoading はセッションを決定する操作が実行中の状態。
	StatusLoading Status = "loading"
	// StatusAuthenticated はログイン済みの状態。Userを保持する。
	StatusAuthenticated Status = "authenticated"
	// StatusAnonymous は明示的に未ログインの状態。
	StatusAnonymous Status = "anonymous"
)

// Snapshot はある時点のセッション状態のコピー。
// User はStatusがStatusAuthenticatedの場合のみ非nil。
type Snapshot struct {
	Status Status
	User   *model.User
}

// API はセッション管理が必要とするゲートウェイ操作のインターフェース。
// apiclient.Client の部分集合として定義する。
type API interface {
	Login(ctx context.Context, payload apiclient.LoginPayload) (*model.User, error)
	Logout(ctx context.Context) (string, error)
	Me(ctx context.Context) (*model.User, error)
	UpdateMe(ctx context.Context, payload apiclient.UpdateMePayload) (*model.User, error)
	Register(ctx context.Context, payload apiclient.RegisterPayload) (string, error)
}

// Service はセッション状態マシンの実装。
// 状態の変更は本サービスのメソッドのみが行う。
// 操作ごとに世代番号を割り当て、古い操作の結果が新しい状態を
// 上書きしないことを保証する。
type Service struct {
	api    API
	logger *slog.Logger

	mu     sync.Mutex
	status Status
	user   *model.User
	gen    uint64
	subs   []chan Snapshot
}

// New はServiceの新しいインスタンスを生成する。
// apiは必須であり、nilの場合はプログラミングエラーとしてpanicする。
// 初期状態はStatusUninitialized。アプリケーション起動直後に
// Initを1回呼び出すこと。
func New(api API, logger *slog.Logger) *Service {
	if api == nil {
		panic("session: api is required")
	}
	return &Service{
		api:    api,
		logger: logger,
		status: StatusUninitialized,
	}
}

// Snapshot は現在のセッション状態のコピーを返す。
// Userは内部状態とは別のコピーであり、呼び出し元が変更しても影響しない。
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe は状態遷移のたびにSnapshotを受信するチャンネルを返す。
// 送信はノンブロッキングで行われ、受信が追いつかない場合は中間状態が
// 欠落するが、最新状態は常にSnapshot()で取得できる。
func (s *Service) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 8)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// Init は起動時のセッション確認を行う。
// GET /me が成功すればAuthenticated、401ならAnonymous（未ログインは
// 正常系）、その他のエラーはログに記録してAnonymousに倒す。
// UIをLoadingのまま放置せず、想定外の失敗を認証済みとして扱わない。
func (s *Service) Init(ctx context.Context) {
	gen, _ := s.begin()

	user, err := s.api.Me(ctx)
	if err != nil {
		if !apiclient.IsStatus(err, 401) {
			s.logger.Error("セッションの初期確認に失敗しました",
				slog.String("error", err.Error()),
			)
		}
		s.apply(gen, StatusAnonymous, nil)
		return
	}

	s.apply(gen, StatusAuthenticated, user)
}

// Login はログインし、成功時に完全なプロフィールを再取得して
// Authenticatedに遷移する。失敗時はAnonymousに遷移した上で
// エラーを呼び出し元に伝播する（資格情報不一致は401のHTTPError）。
func (s *Service) Login(ctx context.Context, identifier, password string) error {
	if strings.TrimSpace(identifier) == "" {
		return model.NewMissingFieldError("identifier")
	}
	if password == "" {
		return model.NewMissingFieldError("password")
	}

	gen, _ := s.begin()

	if _, err := s.api.Login(ctx, apiclient.LoginPayload{Identifier: identifier, Password: password}); err != nil {
		s.apply(gen, StatusAnonymous, nil)
		return err
	}

	// ログインレスポンスのuserにはcreated_atが含まれないため、
	// /me で完全なプロフィールを取得する
	user, err := s.api.Me(ctx)
	if err != nil {
		s.apply(gen, StatusAnonymous, nil)
		return err
	}

	s.apply(gen, StatusAuthenticated, user)
	return nil
}

// Logout はサーバー側セッションの破棄を試み、結果に関わらず
// クライアント側ではAnonymousに遷移する。
// サーバー呼び出しの失敗はログに記録するのみで致命的とはしない。
func (s *Service) Logout(ctx context.Context) {
	gen, _ := s.begin()

	if _, err := s.api.Logout(ctx); err != nil {
		s.logger.Error("ログアウトAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	s.apply(gen, StatusAnonymous, nil)
}

// Refresh は現在のプロフィールを再取得する。
// 401の場合はAnonymousに降格する（エラーにはしない）。
// その他のエラーは操作前の終端状態を復元した上で伝播する。
func (s *Service) Refresh(ctx context.Context) error {
	gen, prev := s.begin()

	user, err := s.api.Me(ctx)
	if err != nil {
		if apiclient.IsStatus(err, 401) {
			s.apply(gen, StatusAnonymous, nil)
			return nil
		}
		s.restore(gen, prev)
		return err
	}

	s.apply(gen, StatusAuthenticated, user)
	return nil
}

// UpdateProfile はプロフィールの可変フィールドを部分更新し、
// その後Refreshと同じ再同期を行う。書き込み後の正はサーバーであり、
// 送信したパッチではなくサーバーが確定した値をローカルに反映する。
func (s *Service) UpdateProfile(ctx context.Context, patch apiclient.UpdateMePayload) error {
	if patch.Username == nil && patch.FirstName == nil && patch.LastName == nil {
		return model.NewNoFieldsError()
	}

	gen, prev := s.begin()

	if _, err := s.api.UpdateMe(ctx, patch); err != nil {
		s.restore(gen, prev)
		return err
	}

	user, err := s.api.Me(ctx)
	if err != nil {
		if apiclient.IsStatus(err, 401) {
			s.apply(gen, StatusAnonymous, nil)
			return nil
		}
		s.restore(gen, prev)
		return err
	}

	s.apply(gen, StatusAuthenticated, user)
	return nil
}

// Register はアカウント作成 → 作成した資格情報でのログイン →
// プロフィール取得を1つのオンボーディング処理として合成する。
// いずれかの段階が失敗した場合は残りを中断し、Anonymousに遷移した上で
// エラーを伝播する（重複アイデンティティは409のHTTPError）。
func (s *Service) Register(ctx context.Context, payload apiclient.RegisterPayload) error {
	required := []struct {
		field string
		value string
	}{
		{"email", payload.Email},
		{"username", payload.Username},
		{"password", payload.Password},
		{"first_name", payload.FirstName},
		{"last_name", payload.LastName},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return model.NewMissingFieldError(r.field)
		}
	}

	gen, _ := s.begin()

	if _, err := s.api.Register(ctx, payload); err != nil {
		s.apply(gen, StatusAnonymous, nil)
		return err
	}

	if _, err := s.api.Login(ctx, apiclient.LoginPayload{Identifier: payload.Username, Password: payload.Password}); err != nil {
		s.apply(gen, StatusAnonymous, nil)
		return err
	}

	user, err := s.api.Me(ctx)
	if err != nil {
		s.apply(gen, StatusAnonymous, nil)
		return err
	}

	s.apply(gen, StatusAuthenticated, user)
	return nil
}

// begin は操作の開始を宣言する。
// 新しい世代番号を払い出してLoadingに遷移し、操作前のSnapshotを返す。
func (s *Service) begin() (uint64, Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	gen := s.gen
	prev := s.snapshotLocked()

	s.status = StatusLoading
	s.notifyLocked()

	return gen, prev
}

// apply は操作の結果を状態に反映する。
// より新しい操作が開始されていた場合（世代番号の不一致）は反映せず破棄する。
// 破棄された操作の終端状態は、それを追い越した操作が責任を持つ。
func (s *Service) apply(gen uint64, status Status, user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.logger.Debug("古い操作の結果を破棄しました",
			slog.Uint64("gen", gen),
			slog.Uint64("current_gen", s.gen),
		)
		return
	}

	s.status = status
	if status == StatusAuthenticated {
		s.user = user
	} else {
		s.user = nil
	}
	s.notifyLocked()
}

// restore は操作前の終端状態を復元する。
// 操作前がUninitialized / Loadingだった場合はAnonymousに倒す
// （復元先も必ず終端状態でなければならない）。
func (s *Service) restore(gen uint64, prev Snapshot) {
	status := prev.Status
	if status != StatusAuthenticated && status != StatusAnonymous {
		status = StatusAnonymous
	}
	s.apply(gen, status, prev.User)
}

// snapshotLocked はロック保持中に現在状態のコピーを作る。
func (s *Service) snapshotLocked() Snapshot {
	snap := Snapshot{Status: s.status}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// notifyLocked はロック保持中に全購読者へ現在状態を通知する。
// 受信できない購読者への送信はスキップする。
func (s *Service) notifyLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
