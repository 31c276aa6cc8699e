// Package model はドメインモデルを定義する。
package model

import "fmt"

// Collection はリモートストア上のコレクション（テーブル）名。
type Collection string

const (
	CollectionProfiles Collection = "profiles"
	CollectionBlogs    Collection = "blogs"
	CollectionEvents   Collection = "events"
)

// FilterOp はフィルタ演算子。
type FilterOp string

const (
	// FilterEq は column = value。
	FilterEq FilterOp = "eq"
	// FilterNotNull は column IS NOT NULL。
	FilterNotNull FilterOp = "not_null"
)

// Filter は1つの絞り込み条件を表す。
type Filter struct {
	Column string
	Op     FilterOp
	Value  any
}

// Order は並び順を表す。
type Order struct {
	Column    string
	Ascending bool
}

// Query はselectに渡す修飾子（filter, order, limit）をまとめたもの。
// 再試行時に同一リクエストを再発行できるよう値型として扱う。
type Query struct {
	Filters []Filter
	Order   Order
	Limit   int // 0は無制限
	// RequireAuthor がtrueの場合、profilesとのJOINを必須（INNER JOIN）とする。
	// 著者プロフィールが存在しない行は結果から除外される。
	RequireAuthor bool
}

// String はログ出力用の表現を返す。
func (q Query) String() string {
	dir := "desc"
	if q.Order.Ascending {
		dir = "asc"
	}
	return fmt.Sprintf("filters=%v order=%s.%s limit=%d inner=%t", q.Filters, q.Order.Column, dir, q.Limit, q.RequireAuthor)
}

// Equal は2つのQueryが同一リクエストかどうかを判定する。
func (q Query) Equal(other Query) bool {
	if q.Order != other.Order || q.Limit != other.Limit || q.RequireAuthor != other.RequireAuthor {
		return false
	}
	if len(q.Filters) != len(other.Filters) {
		return false
	}
	for i := range q.Filters {
		if q.Filters[i] != other.Filters[i] {
			return false
		}
	}
	return true
}

// BlogListQuery はブログ一覧ページのクエリ（作成日時の降順、著者JOIN必須）を返す。
func BlogListQuery() Query {
	return Query{
		Order:         Order{Column: "created_at", Ascending: false},
		RequireAuthor: true,
	}
}

// BlogPreviewQuery はトップページのプレビュー用クエリを返す。
func BlogPreviewQuery(limit int) Query {
	return Query{
		Order: Order{Column: "created_at", Ascending: false},
		Limit: limit,
	}
}

// EventListQuery はイベント一覧ページのクエリ（開催日の昇順）を返す。
func EventListQuery() Query {
	return Query{
		Order: Order{Column: "date", Ascending: true},
	}
}

// MemberListQuery はメンバー一覧ページのクエリ（名前設定済みのみ）を返す。
func MemberListQuery() Query {
	return Query{
		Filters: []Filter{{Column: "name", Op: FilterNotNull}},
		Order:   Order{Column: "name", Ascending: true},
	}
}
