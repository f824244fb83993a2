package repository

import (
	"github.com/lib/pq"

	"github.com/unclebandit/marketing-dashboard/internal/db"
	"github.com/unclebandit/marketing-dashboard/internal/model"
)

// AudienceScope selects which predicate set an audience filter is evaluated with.
type AudienceScope int

const (
	// ScopeStart is what a campaign start queues: active contacts, tag overlap, template exclusions.
	// Status and engagement-level lists are not applied.
	ScopeStart AudienceScope = iota
	// ScopePreview additionally honours explicit status and engagement-level lists.
	ScopePreview
)

// audienceWhere builds the contact predicate for f. Column references are qualified with alias.
func audienceWhere(f model.AudienceFilter, scope AudienceScope, alias string, args *db.Args) db.Where {
	col := func(name string) string { return alias + "." + name }
	var where db.Where

	if scope == ScopePreview && len(f.Statuses) > 0 {
		where.And(col("status") + " = ANY(" + args.Add(pq.Array(statusStrings(f.Statuses))) + ")")
	} else {
		where.And(col("status") + " = 'active'")
	}
	if len(f.Tags) > 0 {
		where.And(col("tags") + " && " + args.Add(pq.Array(f.Tags)) + "::text[]")
	}
	if len(f.ExcludeTemplates) > 0 {
		where.And("NOT (" + col("templates_received") + " && " + args.Add(pq.Array(f.ExcludeTemplates)) + "::text[])")
	}
	if scope == ScopePreview && len(f.EngagementLevels) > 0 {
		where.And(col("engagement_level") + " = ANY(" + args.Add(pq.Array(levelStrings(f.EngagementLevels))) + ")")
	}
	return where
}

func statusStrings(in []model.ContactStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func levelStrings(in []model.EngagementLevel) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
