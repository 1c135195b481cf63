package discord

import (
	"fmt"
	"strings"
	"time"

	"bluebird/internal/domain"
	"bluebird/internal/format"
)

// Build renders n as a components v2 webhook message: the reply parent,
// the post itself, the quoted post and the repost source, followed by an
// outbound link row.
func (w *Webhook) Build(n *domain.Notification) Message {
	msg := Message{
		Username:  w.username,
		AvatarURL: w.avatarURL,
		Flags:     flagComponentsV2,
	}

	if n.ReplyParent != nil {
		msg.Components = append(msg.Components, w.buildPost(n.ReplyParent, true, n.CreatedAt))
	}

	msg.Components = append(msg.Components, w.buildPost(&n.Post, false, n.CreatedAt))

	if n.Quote != nil {
		msg.Components = append(msg.Components, w.buildPost(n.Quote, true, n.CreatedAt))
	}
	if n.RepostOf != nil {
		msg.Components = append(msg.Components, w.buildPost(n.RepostOf, true, n.CreatedAt))
	}

	msg.Components = append(msg.Components, Component{
		Type:       typeActionRow,
		Components: []Component{linkButton("View on X", n.Post.URL)},
	})

	return msg
}

func (w *Webhook) buildPost(post *domain.Post, mini bool, fallback time.Time) Component {
	accent := w.accentColor
	container := Component{Type: typeContainer, AccentColor: &accent}

	container.Components = append(container.Components, w.buildHead(post, mini)...)

	// Reposts only show who reposted; the source post carries the content.
	if !post.Relations.IsRepost {
		if body, ok := buildBody(post); ok {
			container.Components = append(container.Components, body)
		}
		if media, ok := buildMedia(post); ok {
			container.Components = append(container.Components, media)
		}
	}

	container.Components = append(container.Components, separator(), buildFooter(post, fallback))

	return container
}

func (w *Webhook) buildHead(post *domain.Post, mini bool) []Component {
	handle := post.Author.ScreenName
	if handle == "" {
		handle = post.Account
	}
	display := post.Author.Name
	if display == "" {
		display = handle
	}
	name := fmt.Sprintf("%s (%s)", display, format.MaskedLink("@"+handle, format.BaseURL+handle))

	if mini {
		return []Component{textDisplay(format.Bold(name))}
	}

	texts := []Component{textDisplay(format.Header(name))}
	if bio := format.Text(post.Author.Bio, format.BaseURL); bio != "" {
		texts = append(texts, textDisplay(format.Subtext(bio)))
	}

	if post.Author.AvatarURL == "" {
		return texts
	}

	// Full size avatar.
	avatar := strings.Replace(post.Author.AvatarURL, "_normal", "", 1)
	return []Component{{
		Type:       typeSection,
		Components: texts,
		Accessory:  &Component{Type: typeThumbnail, Media: &UnfurledMedia{URL: avatar}},
	}}
}

func buildBody(post *domain.Post) (Component, bool) {
	text := format.Text(post.Text, format.BaseURL)
	if text == "" {
		return Component{}, false
	}
	return textDisplay(format.BlockQuote(text)), true
}

func buildMedia(post *domain.Post) (Component, bool) {
	if len(post.Media) == 0 {
		return Component{}, false
	}

	gallery := Component{Type: typeMediaGallery}
	for _, m := range post.Media {
		gallery.Items = append(gallery.Items, MediaItem{
			Media:       UnfurledMedia{URL: m.URL},
			Description: m.AltText,
			Spoiler:     post.Sensitive,
		})
	}
	return gallery, true
}

func buildFooter(post *domain.Post, fallback time.Time) Component {
	posted := post.CreatedAt
	if posted.IsZero() {
		posted = fallback
	}
	n := domain.Notification{Post: *post}
	return textDisplay(format.Subtext(fmt.Sprintf("%s %s (%s)",
		n.Action(),
		timestamp(posted, "F"),
		timestamp(posted, "R"),
	)))
}

// timestamp renders a Discord timestamp tag.
func timestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}
