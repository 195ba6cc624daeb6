// Package identity は数値ユーザーIDから表示用アイデンティティへの解決を提供する。
// プロセス内キャッシュと実行中リクエスト台帳により、同一IDへの
// 同時解決要求を1回のネットワーク呼び出しに合流させる。
// キャッシュエントリはセッション生存期間中は失効しない（意図的な仕様。
// 期限切れを導入すると観測可能な挙動が変わるため、追加してはならない）。
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/itmsclient/internal/model"
)

// UnassignedLabel は担当者なし（ID不在）の場合の表示文字列。
const UnassignedLabel = "Unassigned"

// API はリゾルバーが必要とするゲートウェイ操作のインターフェース。
// apiclient.Client の部分集合として定義する。
type API interface {
	GetUser(ctx context.Context, userID int64) (model.UserSummary, error)
}

// CacheRecorder はキャッシュの利用状況を観測するインターフェース。
// metrics.Collector が実装する。nilの場合は観測しない。
type CacheRecorder interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordCoalescedLookup()
	RecordSeededEntries(count int)
}

// call は実行中の解決処理を表す。
// doneがクローズされた後、summary / errが読み取り可能になる。
// 合流した全ての呼び出し元は同一の結果を観測する。
type call struct {
	done    chan struct{}
	summary model.UserSummary
	err     error
}

// Resolver はアイデンティティ解決サービス。
// cacheとpendingの変更は本サービスのメソッドのみが行い、
// 外部はResolve / Lookup / FormatSync経由で読み取る。
// 不変条件: 同一IDについてcacheとpendingが同時に存在することはない。
type Resolver struct {
	api      API
	logger   *slog.Logger
	recorder CacheRecorder // nil可

	mu      sync.Mutex
	cache   map[int64]model.UserSummary
	pending map[int64]*call
}

// New はResolverの新しいインスタンスを生成する。
// apiは必須であり、nilの場合はプログラミングエラーとしてpanicする。
func New(api API, logger *slog.Logger) *Resolver {
	if api == nil {
		panic("identity: api is required")
	}
	return &Resolver{
		api:     api,
		logger:  logger,
		cache:   make(map[int64]model.UserSummary),
		pending: make(map[int64]*call),
	}
}

// SetRecorder はキャッシュ利用状況の観測先を設定する。
func (r *Resolver) SetRecorder(rec CacheRecorder) {
	r.recorder = rec
}

// SeedFromMembers は取得済みのメンバー一覧からキャッシュをシードする。
// 既にキャッシュ済みのIDは上書きしない。ネットワーク呼び出しは行わない。
func (r *Resolver) SeedFromMembers(members []model.ProjectMember) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seeded := 0
	for i := range members {
		m := &members[i]
		if _, ok := r.cache[m.UserID]; ok {
			continue
		}
		r.cache[m.UserID] = m.Summary()
		seeded++
	}
	if seeded > 0 && r.recorder != nil {
		r.recorder.RecordSeededEntries(seeded)
	}
}

// SeedFromUser はログイン中ユーザー自身の情報でキャッシュをシードする。
// userがnilまたはキャッシュ済みの場合は何もしない。
func (r *Resolver) SeedFromUser(user *model.User) {
	if user == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cache[user.UserID]; ok {
		return
	}
	r.cache[user.UserID] = user.Summary()
	if r.recorder != nil {
		r.recorder.RecordSeededEntries(1)
	}
}

// Resolve はIDを表示用アイデンティティに解決する。
// キャッシュ済みなら即座に返し、同一IDの解決が実行中なら
// その結果に合流する（同一IDへの同時ネットワーク呼び出しは常に最大1つ）。
// 失敗した解決はキャッシュに痕跡を残さず、直後の再試行は新しい呼び出しを発行する。
func (r *Resolver) Resolve(ctx context.Context, userID int64) (model.UserSummary, error) {
	r.mu.Lock()

	if summary, ok := r.cache[userID]; ok {
		r.mu.Unlock()
		if r.recorder != nil {
			r.recorder.RecordCacheHit()
		}
		return summary, nil
	}

	if c, ok := r.pending[userID]; ok {
		r.mu.Unlock()
		if r.recorder != nil {
			r.recorder.RecordCoalescedLookup()
		}
		// 実行中の解決結果に合流する。自分のctxが先に中断された場合は
		// 待機を打ち切るが、解決処理自体は継続して完了する。
		select {
		case <-c.done:
			return c.summary, c.err
		case <-ctx.Done():
			return model.UserSummary{}, ctx.Err()
		}
	}

	c := &call{done: make(chan struct{})}
	r.pending[userID] = c
	r.mu.Unlock()

	if r.recorder != nil {
		r.recorder.RecordCacheMiss()
	}

	summary, err := r.api.GetUser(ctx, userID)

	r.mu.Lock()
	// 成功・失敗いずれの場合もpendingから同期的に除去する。
	// キャッシュへの格納はpending除去後に行う（両方が同時に
	// 存在する瞬間を作らない）。
	delete(r.pending, userID)
	if err == nil {
		r.cache[userID] = summary
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("ユーザーアイデンティティの解決に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		c.err = err
	} else {
		c.summary = summary
	}
	close(c.done)

	return summary, err
}

// Lookup はキャッシュのみを参照して解決済みアイデンティティを返す。
// ネットワーク呼び出しは行わない。
func (r *Resolver) Lookup(userID int64) (model.UserSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary, ok := r.cache[userID]
	return summary, ok
}

// FormatSync はキャッシュのみを使う同期・ベストエフォートの表示名整形。
// ネットワーク呼び出しを発行せず、どの時点でも呼び出し可能。
// IDがnilなら "Unassigned"、未キャッシュなら "User #<id>"、
// 解決済みなら "First Last (username)" を返す。
// コメント一覧のような多数のIDを一括表示する描画経路が
// ネットワーク待ちでブロックされないために存在する。
func (r *Resolver) FormatSync(userID *int64) string {
	if userID == nil {
		return UnassignedLabel
	}

	summary, ok := r.Lookup(*userID)
	if !ok {
		return fmt.Sprintf("User #%d", *userID)
	}
	return fmt.Sprintf("%s %s (%s)", summary.FirstName, summary.LastName, summary.Username)
}

// Clear はキャッシュを空にする。テストのティアダウン専用。
// 実行中の解決には影響しない（完了時にキャッシュへ格納される）。
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[int64]model.UserSummary)
}
