// Package filter decides whether a newly discovered post should produce a notification.
package filter

import (
	"strings"

	"bluebird/internal/domain"
)

// Config holds the per-account predicates. The zero value accepts everything.
type Config struct {
	RequireMedia    bool
	RequireKeywords []string
	ExcludeReply    bool
	ExcludeRepost   bool
	ExcludeKeywords []string
}

type Reason string

const (
	ReasonAccepted        Reason = ""
	ReasonMissingText     Reason = "keyword requirement, post has no text"
	ReasonMissingKeyword  Reason = "keyword requirement"
	ReasonMissingMedia    Reason = "media requirement"
	ReasonReply           Reason = "reply exclusion"
	ReasonRepost          Reason = "repost exclusion"
	ReasonExcludedKeyword Reason = "keyword exclusion"
)

// Decision is the outcome of Evaluate. Keyword is set when a keyword
// rule decided the outcome.
type Decision struct {
	Accepted bool
	Reason   Reason
	Keyword  string
}

// Accept reports whether post passes every predicate in cfg.
func Accept(post *domain.Post, cfg Config) bool {
	return Evaluate(post, cfg).Accepted
}

// Evaluate runs the predicates in fixed order and stops at the first rejection.
func Evaluate(post *domain.Post, cfg Config) Decision {
	if len(cfg.RequireKeywords) > 0 {
		if post.Text == "" {
			return reject(ReasonMissingText, "")
		}
		if _, ok := matchKeyword(post.Text, cfg.RequireKeywords); !ok {
			return reject(ReasonMissingKeyword, "")
		}
	}

	if cfg.RequireMedia && len(post.Media) == 0 {
		return reject(ReasonMissingMedia, "")
	}

	if cfg.ExcludeReply && post.Relations.IsReply {
		return reject(ReasonReply, "")
	}

	if cfg.ExcludeRepost && post.Relations.IsRepost {
		return reject(ReasonRepost, "")
	}

	if len(cfg.ExcludeKeywords) > 0 && post.Text != "" {
		if kw, ok := matchKeyword(post.Text, cfg.ExcludeKeywords); ok {
			return reject(ReasonExcludedKeyword, kw)
		}
	}

	return Decision{Accepted: true}
}

func reject(reason Reason, keyword string) Decision {
	return Decision{Reason: reason, Keyword: keyword}
}

// matchKeyword returns the first keyword found in text, ignoring case.
func matchKeyword(text string, keywords []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}
