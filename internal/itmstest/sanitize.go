package itmstest

import "github.com/microcosm-cc/bluemonday"

// sanitizer はユーザー入力のHTMLコンテンツ（課題の説明、コメント本文）を
// 保存前にサニタイズする。許可リストベースのポリシーで、
// script / iframe / styleタグおよびon*イベント属性を除去する。
type sanitizer struct {
	policy *bluemonday.Policy
}

// newSanitizer はsanitizerの新しいインスタンスを生成する。
// 許可タグ: p, br, a(href), ul, ol, li, blockquote, pre, code, strong, em
func newSanitizer() *sanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.RequireNoReferrerOnLinks(true)

	return &sanitizer{policy: p}
}

// clean はコンテンツをサニタイズして返す。
// プレーンテキストはそのまま通過する（冪等）。
func (s *sanitizer) clean(content string) string {
	return s.policy.Sanitize(content)
}
