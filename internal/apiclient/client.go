// Package apiclient はITMS APIへの唯一の出口となるリクエストゲートウェイと、
// 型付きエンドポイントメソッドを提供する。
// 全てのHTTP結果は成功値またはHTTPError / NetworkErrorに正規化される。
// リトライ・タイムアウト・キューイングは行わない（必要なら呼び出し元の責務）。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultUserAgent = "itmsclient/1.0"

// RequestRecorder はゲートウェイのリクエスト結果を観測するインターフェース。
// metrics.Collector が実装する。nilの場合は観測しない。
type RequestRecorder interface {
	RecordRequest(method string, statusCode int, duration time.Duration)
	RecordNetworkError(method string)
}

// Client はITMS APIのリクエストゲートウェイ。
// セッション資格情報（Cookie）の送信は必須であり、
// 注入されたhttp.ClientにCookie Jarがない場合は生成時に装着する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	userAgent  string
	recorder   RequestRecorder // nil可
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLの末尾スラッシュは取り除かれる。
// httpClientにCookie Jarが未設定の場合、セッションCookieを保持できるよう
// インメモリのJarを装着する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	if httpClient.Jar == nil {
		// cookiejar.Newはnilオプションではエラーを返さない
		jar, _ := cookiejar.New(nil)
		httpClient.Jar = jar
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  defaultUserAgent,
	}
}

// SetRecorder はリクエスト結果の観測先を設定する。
func (c *Client) SetRecorder(r RequestRecorder) {
	c.recorder = r
}

// SetUserAgent はUser-Agentヘッダーを上書きする。
func (c *Client) SetUserAgent(ua string) {
	if ua != "" {
		c.userAgent = ua
	}
}

// do は全エンドポイントメソッドが経由する単一のリクエスト発行点。
// payloadが非nilの場合はJSONとしてシリアライズして送信する。
// レスポンスのContent-TypeがJSONの場合のみボディをパースし、
// 2xxならoutにデコード、成功範囲外ならHTTPErrorに変換して返す。
// サーバーに到達しなかった場合はNetworkErrorを返す。
func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.New().String())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.recorder != nil {
			c.recorder.RecordNetworkError(method)
		}
		c.logger.Error("ITMS APIへの接続に失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return &NetworkError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if c.recorder != nil {
		c.recorder.RecordRequest(method, resp.StatusCode, time.Since(start))
	}

	// Content-TypeがJSONの場合のみボディをパースする。それ以外はボディなし扱い。
	var body any
	if isJSONResponse(resp) {
		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", readErr)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
			}
			if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
				if err := json.Unmarshal(raw, out); err != nil {
					return fmt.Errorf("レスポンスのデコードに失敗しました: %w", err)
				}
			}
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, body),
			Details: body,
		}
		c.logger.Warn("ITMS APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", httpErr.Message),
		)
		return httpErr
	}

	return nil
}

// isJSONResponse はレスポンスのContent-TypeがJSONかどうかを判定する。
func isJSONResponse(resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.Contains(ct, "application/json")
	}
	return mediaType == "application/json"
}

// errorMessage はエラーレスポンスボディから表示用メッセージを導出する。
// ボディがオブジェクトで文字列のerrorフィールドを持つ場合はそれを、
// それ以外は "HTTP <status>" を返す。
func errorMessage(status int, body any) string {
	if obj, ok := body.(map[string]any); ok {
		if msg, ok := obj["error"].(string); ok {
			return msg
		}
	}
	return fmt.Sprintf("HTTP %d", status)
}
