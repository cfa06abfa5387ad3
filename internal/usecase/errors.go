package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// 画面側がメッセージを出し分けるためのエラーコード
type ErrorCode string

const (
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeInsufficientStock ErrorCode = "INSUFFICIENT_STOCK"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeStorageFailure    ErrorCode = "STORAGE_FAILURE"
)

type HTTPError struct {
	Status  int
	Code    ErrorCode
	Message string
	// 原因になった商品（在庫不足など）
	ProductID int64
	// 同じリクエストをやり直せば通る可能性がある
	Retryable bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// エラーコードを取り出す（HTTPError 以外は STORAGE_FAILURE 扱い）
func CodeOf(err error) ErrorCode {
	if he, ok := AsHTTPError(err); ok {
		return he.Code
	}
	return CodeStorageFailure
}

func errInvalidInput(message string) error {
	return &HTTPError{Status: http.StatusBadRequest, Code: CodeInvalidInput, Message: message}
}

func errNotFound(message string) error {
	return &HTTPError{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

func errUnauthorized() error {
	return &HTTPError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "unauthorized"}
}

func errInsufficientStock(productID int64, name string, available int64) error {
	return &HTTPError{
		Status:    http.StatusConflict,
		Code:      CodeInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for %q (available: %d)", name, available),
		ProductID: productID,
	}
}

// 注文時点で買えなくなった商品（非公開・削除済み）
func errProductUnavailable(productID int64) error {
	return &HTTPError{
		Status:    http.StatusNotFound,
		Code:      CodeNotFound,
		Message:   "product is no longer available",
		ProductID: productID,
	}
}

func errInvalidTransition(from, to string) error {
	return &HTTPError{
		Status:  http.StatusConflict,
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot change status from %s to %s", from, to),
	}
}

func errConflict(message string) error {
	return &HTTPError{Status: http.StatusConflict, Code: CodeConflict, Message: message, Retryable: true}
}

// DBエラー。タイムアウト・キャンセルは503でリトライ可。
func errStorage(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &HTTPError{
			Status:    http.StatusServiceUnavailable,
			Code:      CodeStorageFailure,
			Message:   "storage timeout",
			Retryable: true,
		}
	}
	return &HTTPError{Status: http.StatusInternalServerError, Code: CodeStorageFailure, Message: "db error"}
}

// HTTPError はそのまま、それ以外は storage failure に寄せる
func toHTTPError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	return errStorage(err)
}
