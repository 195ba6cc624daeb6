package apiclient

import (
	"errors"
	"fmt"
)

// HTTPError はサーバーが成功範囲外のステータスを返した場合のエラーを表す。
// Message はレスポンスボディのerrorフィールド（文字列の場合）、
// なければ "HTTP <status>" 形式の汎用メッセージ。
// Details はパース済みボディ全体をそのまま保持し、
// 呼び出し元が409の重複理由等を独自に解釈できるようにする。
type HTTPError struct {
	Status  int
	Message string
	Details any
}

// Error はerrorインターフェースを実装する。
func (e *HTTPError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Status, e.Message)
}

// NetworkError はサーバーに到達できなかった場合のエラーを表す。
// DNS解決失敗、接続拒否、コンテキスト中断などが該当する。
// HTTPステータスは存在しない。
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s への接続に失敗しました: %v", e.Method, e.URL, e.Err)
}

// Unwrap はラップされた下位エラーを返す。
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AsHTTPError はエラーがHTTPErrorの場合にそれを取り出す。
// 呼び出し元はこれでステータスコードによる分岐を行う。
func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// IsNetworkError はエラーがNetworkError（ステータスなしの転送層エラー）かどうかを判定する。
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsStatus はエラーが指定ステータスのHTTPErrorかどうかを判定する。
// 401や404の分岐を1行で書くためのヘルパー。
func IsStatus(err error, status int) bool {
	he, ok := AsHTTPError(err)
	return ok && he.Status == status
}
