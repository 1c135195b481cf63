package domain

import "time"

type Post struct {
	ID        string      `json:"id"`
	Position  int64       `json:"position"` // ordering key compared against the account cursor
	Account   string      `json:"account"`
	URL       string      `json:"url"`
	Text      string      `json:"text,omitempty"`
	Author    Author      `json:"author"`
	Media     []Media     `json:"media,omitempty"`
	Relations Relations   `json:"relations"`
	Related   RelatedRefs `json:"related"`
	Sensitive bool        `json:"sensitive,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

type Author struct {
	ScreenName string `json:"screen_name"`
	Name       string `json:"name,omitempty"`
	Bio        string `json:"bio,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
}

type Media struct {
	URL     string `json:"url"`
	Type    string `json:"type"`
	AltText string `json:"alt_text,omitempty"`
}

type Relations struct {
	IsReply  bool `json:"is_reply"`
	IsRepost bool `json:"is_repost"`
	IsQuote  bool `json:"is_quote"`
}

// PostRef points at another post by author handle and post id.
type PostRef struct {
	Account string `json:"account"`
	PostID  string `json:"post_id"`
}

func (r *PostRef) Valid() bool {
	return r != nil && r.Account != "" && r.PostID != ""
}

type RelatedRefs struct {
	ReplyTarget  *PostRef `json:"reply_target,omitempty"`
	QuoteTarget  *PostRef `json:"quote_target,omitempty"`
	RepostTarget *PostRef `json:"repost_target,omitempty"`
}

// Snapshot is a single fetch result. Posts arrive in no particular order.
type Snapshot struct {
	Posts []Post
	// RecommendedInterval is zero when the upstream gave no hint.
	RecommendedInterval time.Duration
	// CanonicalID is empty when the upstream did not resolve the account.
	CanonicalID string
}
