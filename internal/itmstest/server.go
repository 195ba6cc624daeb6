// Package itmstest はITMS APIのインメモリテストダブルを提供する。
// apiclientの統合テストとローカル開発で、実サーバーの観測可能な挙動
// （ステータスコード、エラーボディの形式、Cookieセッション、
// レート制限、コンテンツのサニタイズ）を再現する。
// データはプロセス生存期間のみ保持される。
package itmstest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// SessionCookieName はセッションCookieの名前。
const SessionCookieName = "itms_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// Server はITMS APIのテストダブル。
// 全ての状態変更は単一のミューテックスで直列化する。
type Server struct {
	logger    *slog.Logger
	sanitizer *sanitizer

	mu        sync.Mutex
	store     *store
	sessions  map[string]int64 // セッショントークン → userID
	limiters  map[string]*rate.Limiter
	rateLimit rate.Limit
	burst     int
}

// NewServer はServerの新しいインスタンスを生成する。
// レート制限はテストが誤って引っかからない程度に緩い値がデフォルト。
func NewServer(logger *slog.Logger) *Server {
	return &Server{
		logger:    logger,
		sanitizer: newSanitizer(),
		store:     newStore(),
		sessions:  make(map[string]int64),
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rate.Limit(100),
		burst:     200,
	}
}

// SetRateLimit はセッションごとのレート制限を上書きする。
// 429パスのテスト用。既存セッションのリミッターもリセットされる。
func (s *Server) SetRateLimit(limit rate.Limit, burst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimit = limit
	s.burst = burst
	s.limiters = make(map[string]*rate.Limiter)
}

// Handler は全エンドポイントのルーティングを構成したchi.Routerを返す。
// 認証ルートと/healthはセッションミドルウェアの外に配置する。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// --- 認証不要のルート ---
	r.Get("/health", s.handleHealth)
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit
	r.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)
		r.Use(s.rateLimitMiddleware)

		r.Get("/me", s.handleMe)
		r.Patch("/me", s.handleUpdateMe)
		r.Get("/users/{id}", s.handleGetUser)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetProject)
				r.Patch("/", s.handleUpdateProject)
				r.Delete("/", s.handleDeleteProject)
				r.Patch("/visibility", s.handleUpdateProjectVisibility)

				r.Get("/members", s.handleListMembers)
				r.Post("/members", s.handleAddMember)
				r.Patch("/members/{memberId}", s.handleChangeMemberRole)
				r.Delete("/members/{memberId}", s.handleRemoveMember)

				r.Get("/issues", s.handleListIssues)
				r.Post("/issues", s.handleCreateIssue)

				r.Get("/labels", s.handleListLabels)
				r.Post("/labels", s.handleCreateLabel)
				r.Patch("/labels/{labelId}", s.handleUpdateLabel)
				r.Delete("/labels/{labelId}", s.handleDeleteLabel)
			})
		})

		r.Route("/issues/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetIssue)
			r.Patch("/", s.handleUpdateIssue)
			r.Patch("/assignee", s.handleUpdateAssignee)
			r.Get("/history", s.handleGetHistory)

			r.Post("/labels", s.handleAddLabelToIssue)
			r.Delete("/labels/{labelId}", s.handleRemoveLabelFromIssue)

			r.Get("/comments", s.handleListComments)
			r.Post("/comments", s.handleAddComment)
		})

		r.Patch("/comments/{id}", s.handleUpdateComment)
		r.Delete("/comments/{id}", s.handleDeleteComment)
	})

	return r
}

// sessionMiddleware はCookieからセッションを検証し、
// ユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには401を返す。
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		s.mu.Lock()
		userID, ok := s.sessions[cookie.Value]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware はセッショントークンごとのトークンバケットで
// リクエストを制限する。超過時は429を返す。
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		s.mu.Lock()
		limiter, ok := s.limiters[cookie.Value]
		if !ok {
			limiter = rate.NewLimiter(s.rateLimit, s.burst)
			s.limiters[cookie.Value] = limiter
		}
		s.mu.Unlock()

		if !limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// currentUserID はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func currentUserID(r *http.Request) int64 {
	userID, _ := r.Context().Value(userIDContextKey).(int64)
	return userID
}

// urlID はURLパラメータを数値IDとして解析する。
func urlID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// decodeBody はリクエストボディをJSONとしてデコードする。
func decodeBody(r *http.Request, out any) bool {
	return json.NewDecoder(r.Body).Decode(out) == nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeError は実サーバーと同じ {"error": "..."} 形式のエラーを書き込む。
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// handleHealth はGET /healthを処理する。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// newSessionToken は新しいセッショントークンを払い出す。
func newSessionToken() string {
	return uuid.New().String()
}
