package itmstest

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/itmsclient/internal/model"
)

// handleRegister はPOST /auth/registerを処理する。
// 必須フィールド欠落は400、メールアドレス/ユーザー名の重複は409を返す。
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email     string `json:"email"`
		Username  string `json:"username"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if !decodeBody(r, &payload) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Email == "" || payload.Username == "" || payload.Password == "" ||
		payload.FirstName == "" || payload.LastName == "" {
		writeError(w, http.StatusBadRequest, "Missing fields")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store.identifierTaken(payload.Email, payload.Username, 0) {
		writeError(w, http.StatusConflict, "User already exists")
		return
	}

	user := s.store.createUser(payload.Email, payload.Username, payload.Password, payload.FirstName, payload.LastName)
	s.logger.Info("テストダブル: ユーザーを作成しました",
		slog.Int64("user_id", user.UserID),
		slog.String("username", user.Username),
	)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User created"})
}

// handleLogin はPOST /auth/loginを処理する。
// 資格情報不一致は、ユーザー不在とパスワード誤りを区別しない401を返す。
// 成功時はセッションCookieを設定し、created_atを含まないuserを返す。
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if !decodeBody(r, &payload) || payload.Identifier == "" || payload.Password == "" {
		writeError(w, http.StatusBadRequest, "username/email and password required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.store.findByIdentifier(payload.Identifier)
	if a == nil || a.password != payload.Password {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token := newSessionToken()
	s.sessions[token] = a.user.UserID

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	// ログインレスポンスのuserはcreated_atを含まない
	authUser := a.user
	authUser.CreatedAt = ""
	writeJSON(w, http.StatusOK, map[string]model.User{"user": authUser})
}

// handleLogout はPOST /auth/logoutを処理する。
// セッションの有無に関わらず200を返し、Cookieをクリアする。
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		delete(s.limiters, cookie.Value)
		s.mu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// handleMe はGET /meを処理する。
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.store.users[currentUserID(r)]
	if !ok {
		// セッション中にアカウントが削除された場合のみ起こり得る
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.User{"user": a.user})
}

// handleUpdateMe はPATCH /meを処理する。
// 更新対象フィールドなしは400、ユーザー名の重複は409を返す。
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username  *string `json:"username"`
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
	}
	if !decodeBody(r, &payload) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Username == nil && payload.FirstName == nil && payload.LastName == nil {
		writeError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.store.users[currentUserID(r)]
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	if payload.Username != nil {
		if s.store.identifierTaken("", *payload.Username, a.user.UserID) {
			writeError(w, http.StatusConflict, "Username already in use")
			return
		}
		a.user.Username = *payload.Username
	}
	if payload.FirstName != nil {
		a.user.FirstName = *payload.FirstName
	}
	if payload.LastName != nil {
		a.user.LastName = *payload.LastName
	}

	writeJSON(w, http.StatusOK, map[string]model.User{"user": a.user})
}

// handleGetUser はGET /users/{id}を処理する。
// 未知のIDは404を返す。レスポンスは公開アイデンティティ情報のみ。
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, found := s.store.users[userID]
	if !found {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.UserSummary{"user": a.user.Summary()})
}
