package model

import (
	"errors"
	"strconv"
	"strings"
)

var ErrInvalidOwner = errors.New("invalid owner")

// カートの持ち主の種類
type OwnerKind string

const (
	// 未ログイン（セッションID）
	OwnerKindSession OwnerKind = "session"
	// ログイン済み（アカウントID）
	OwnerKindAccount OwnerKind = "account"
)

const maxSessionIDLen = 128

// Owner はカートの持ち主。セッションかアカウントのどちらか一方だけを持つ。
// フィールドは非公開なので、コンストラクタ以外で両方セットされることはない。
type Owner struct {
	kind      OwnerKind
	sessionID string
	accountID int64
}

// 未ログインユーザー
func AnonymousOwner(sessionID string) (Owner, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" || len(sid) > maxSessionIDLen || strings.Contains(sid, ":") {
		return Owner{}, ErrInvalidOwner
	}
	return Owner{kind: OwnerKindSession, sessionID: sid}, nil
}

// ログイン済みユーザー
func AccountOwner(accountID int64) (Owner, error) {
	if accountID <= 0 {
		return Owner{}, ErrInvalidOwner
	}
	return Owner{kind: OwnerKindAccount, accountID: accountID}, nil
}

func (o Owner) Kind() OwnerKind { return o.kind }

func (o Owner) IsZero() bool { return o.kind == "" }

func (o Owner) IsAnonymous() bool { return o.kind == OwnerKindSession }

func (o Owner) IsAccount() bool { return o.kind == OwnerKindAccount }

func (o Owner) SessionID() (string, bool) {
	return o.sessionID, o.kind == OwnerKindSession
}

func (o Owner) AccountID() (int64, bool) {
	return o.accountID, o.kind == OwnerKindAccount
}

// Key は保存用のキー（session:xxx / account:123）
func (o Owner) Key() string {
	switch o.kind {
	case OwnerKindSession:
		return string(OwnerKindSession) + ":" + o.sessionID
	case OwnerKindAccount:
		return string(OwnerKindAccount) + ":" + strconv.FormatInt(o.accountID, 10)
	default:
		return ""
	}
}

func (o Owner) String() string { return o.Key() }

// ParseOwnerKey は Key() の逆変換
func ParseOwnerKey(key string) (Owner, error) {
	kind, value, ok := strings.Cut(key, ":")
	if !ok {
		return Owner{}, ErrInvalidOwner
	}

	switch OwnerKind(kind) {
	case OwnerKindSession:
		return AnonymousOwner(value)
	case OwnerKindAccount:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Owner{}, ErrInvalidOwner
		}
		return AccountOwner(id)
	default:
		return Owner{}, ErrInvalidOwner
	}
}
