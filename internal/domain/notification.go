package domain

import "time"

// Notification is an accepted post plus whatever related posts could be resolved.
// A nil related field means the post had no such relation or it failed to resolve.
type Notification struct {
	Account     string
	Post        Post
	ReplyParent *Post
	Quote       *Post
	RepostOf    *Post
	CreatedAt   time.Time
}

// Action returns the verb shown alongside the post timestamp.
func (n *Notification) Action() string {
	switch {
	case n.Post.Relations.IsRepost:
		return "Reposted"
	case n.Post.Relations.IsQuote:
		return "Quoted"
	case n.Post.Relations.IsReply:
		return "Replied"
	default:
		return "Posted"
	}
}
