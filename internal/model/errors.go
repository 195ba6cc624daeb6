package model

import (
	"errors"
	"fmt"
)

// ValidationError はリクエスト発行前の入力検証エラーを表す。
// このエラーが返る場合、ネットワーク呼び出しは一切行われていない。
// ゲートウェイが返すHTTPError / NetworkErrorとは型で区別できる。
type ValidationError struct {
	Field   string // 対象フィールド名。複数フィールドに跨る場合は空。
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[VALIDATION] %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("[VALIDATION] %s", e.Message)
}

// IsValidationError はエラーがValidationErrorかどうかを判定する。
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NewMissingFieldError は必須フィールド未入力エラーを生成する。
func NewMissingFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "必須フィールドが入力されていません。",
	}
}

// NewNoFieldsError は更新対象フィールドが1つも指定されていない場合のエラーを生成する。
func NewNoFieldsError() *ValidationError {
	return &ValidationError{
		Message: "更新するフィールドを1つ以上指定してください。",
	}
}
