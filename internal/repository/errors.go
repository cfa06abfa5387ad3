package repository

import "errors"

var (
	// 対象が見つからない
	ErrNotFound = errors.New("not found")

	// 同時更新の衝突（直列化失敗・デッドロック・一意制約の競合）。
	// 呼び出し側はトランザクションごとやり直してよい。
	ErrConflict = errors.New("conflict")
)
