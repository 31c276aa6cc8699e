// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, network, content, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因（ログ用。ユーザーには表示しない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeNetwork           = "NETWORK_ERROR"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeStaleReference    = "STALE_REFERENCE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeSubmitInFlight    = "SUBMIT_IN_FLIGHT"
	ErrCodeLearningUnavail   = "LEARNING_UNAVAILABLE"
	ErrCodeActivationExpired = "ACTIVATION_EXPIRED"
)

// NewNetworkError はリモートストアまたは外部APIへのリクエスト失敗を表すエラーを生成する。
// messageはユーザーに表示する文言。causeはログにのみ出力される。
func NewNetworkError(message string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeNetwork,
		Message:  message,
		Category: "network",
		Action:   "Please try again later.",
		Err:      cause,
	}
}

// NewValidationError は入力値の検証エラーを生成する。
// ネットワーク呼び出しの前に検出され、ストアには送信されない。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "Check the form and submit again.",
	}
}

// NewStaleReferenceError は更新対象がすでに存在しない場合のエラーを生成する。
// 呼び出し側はユーザーに表示せず、no-opとして扱う。
func NewStaleReferenceError(kind ContentKind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeStaleReference,
		Message:  fmt.Sprintf("the %s being updated no longer exists: %s", kind, id),
		Category: "content",
		Action:   "Reload the page.",
	}
}

// NewNotFoundError はコンテンツ未検出エラーを生成する。
func NewNotFoundError(kind ContentKind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found: %s", kind, id),
		Category: "content",
		Action:   "Go back to the list and pick another one.",
	}
}

// NewForbiddenError は所有者以外による編集を拒否するエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You can only edit content you created.",
		Category: "auth",
		Action:   "Open one of your own posts instead.",
	}
}

// NewUnauthorizedError は未ログイン時のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "You need to sign in first.",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewSubmitInFlightError は送信中に再送信された場合のエラーを生成する。
func NewSubmitInFlightError() *APIError {
	return &APIError{
		Code:     ErrCodeSubmitInFlight,
		Message:  "A submission is already in progress.",
		Category: "validation",
		Action:   "Wait for it to finish.",
	}
}

// NewLearningUnavailableError は学習ウィジェットの生成失敗エラーを生成する。
func NewLearningUnavailableError(message string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeLearningUnavail,
		Message:  message,
		Category: "network",
		Action:   "Try Again",
		Err:      cause,
	}
}

// NewActivationExpiredError はページの有効期限切れエラーを生成する。
func NewActivationExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeActivationExpired,
		Message:  "This page has expired.",
		Category: "system",
		Action:   "Reload the page.",
	}
}

// HasCode はerrのチェーンに指定コードのAPIErrorが含まれるかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// IsNetworkError はNETWORK_ERRORかどうかを判定する。
func IsNetworkError(err error) bool { return HasCode(err, ErrCodeNetwork) }

// IsValidationError はVALIDATION_ERRORかどうかを判定する。
func IsValidationError(err error) bool { return HasCode(err, ErrCodeValidation) }

// IsStaleReference はSTALE_REFERENCEかどうかを判定する。
func IsStaleReference(err error) bool { return HasCode(err, ErrCodeStaleReference) }
