package repository

import (
	"fmt"
	"strings"

	"github.com/hitoshi/dotsite/internal/model"
)

// tableSpec はコレクションごとのテーブル定義。
// filterable/orderable に含まれないカラムはSQLを発行する前に拒否する。
type tableSpec struct {
	name       string
	alias      string
	filterable map[string]bool
	orderable  map[string]bool
}

var tableSpecs = map[model.Collection]tableSpec{
	model.CollectionBlogs: {
		name:  "blogs",
		alias: "c",
		filterable: map[string]bool{
			"id": true, "user_id": true, "title": true, "created_at": true,
		},
		orderable: map[string]bool{
			"created_at": true, "title": true,
		},
	},
	model.CollectionEvents: {
		name:  "events",
		alias: "c",
		filterable: map[string]bool{
			"id": true, "user_id": true, "title": true, "created_at": true,
			"date": true, "is_upcoming": true, "location": true,
		},
		orderable: map[string]bool{
			"created_at": true, "title": true, "date": true,
		},
	},
	model.CollectionProfiles: {
		name:  "profiles",
		alias: "p",
		filterable: map[string]bool{
			"id": true, "name": true, "avatar_url": true,
		},
		orderable: map[string]bool{
			"name": true, "created_at": true,
		},
	},
}

// buildModifiers はQueryからWHERE・ORDER BY・LIMIT句を組み立てる。
// argOffsetは既に使用済みのプレースホルダ数。
func buildModifiers(c model.Collection, q model.Query, argOffset int) (string, []any, error) {
	spec, ok := tableSpecs[c]
	if !ok {
		return "", nil, model.NewValidationError(fmt.Sprintf("unknown collection: %s", c))
	}

	var sb strings.Builder
	var args []any

	for i, f := range q.Filters {
		if !spec.filterable[f.Column] {
			return "", nil, model.NewValidationError(fmt.Sprintf("column %q cannot be filtered on %s", f.Column, c))
		}
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		col := spec.alias + "." + f.Column
		switch f.Op {
		case model.FilterEq:
			args = append(args, f.Value)
			fmt.Fprintf(&sb, "%s = $%d", col, argOffset+len(args))
		case model.FilterNotNull:
			fmt.Fprintf(&sb, "%s IS NOT NULL", col)
		default:
			return "", nil, model.NewValidationError(fmt.Sprintf("unsupported filter operator: %s", f.Op))
		}
	}

	if q.Order.Column != "" {
		if !spec.orderable[q.Order.Column] {
			return "", nil, model.NewValidationError(fmt.Sprintf("column %q cannot be ordered on %s", q.Order.Column, c))
		}
		dir := "DESC"
		if q.Order.Ascending {
			dir = "ASC"
		}
		// 同順位の並びを安定させるためidを第2キーにする
		fmt.Fprintf(&sb, " ORDER BY %s.%s %s, %s.id %s", spec.alias, q.Order.Column, dir, spec.alias, dir)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", argOffset+len(args))
	}

	return sb.String(), args, nil
}
