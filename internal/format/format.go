// Package format turns post text into Discord-flavoured markdown.
package format

import (
	"regexp"
	"strings"
)

const BaseURL = "https://x.com/"

var (
	// Word characters include every Unicode letter and digit.
	mentionPattern = regexp.MustCompile(`(^|[^\p{L}\p{N}_])@([\p{L}\p{N}_]+)`)
	hashtagPattern = regexp.MustCompile(`(^|[^\p{L}\p{N}_])#([\p{L}\p{N}_]+)`)
	cashtagPattern = regexp.MustCompile(`(^|[^\p{L}\p{N}_])\$([\p{L}\p{N}_]+)`)
)

// MaskedLink renders [label](url).
func MaskedLink(label, url string) string {
	return "[" + label + "](" + url + ")"
}

func Bold(s string) string { return "**" + s + "**" }

func Header(s string) string { return "# " + s }

func Subtext(s string) string { return "-# " + s }

// BlockQuote prefixes every line with "> ".
func BlockQuote(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

// ReplaceMentions links @handles to their profiles.
func ReplaceMentions(text, base string) string {
	return replace(mentionPattern, text, "@", func(tag string) string { return base + tag })
}

// ReplaceHashtags links #tags to the hashtag search.
func ReplaceHashtags(text, base string) string {
	return replace(hashtagPattern, text, "#", func(tag string) string { return base + "hashtag/" + tag })
}

// ReplaceCashtags links $tickers to the cashtag search.
func ReplaceCashtags(text, base string) string {
	return replace(cashtagPattern, text, "$", func(tag string) string { return base + "search?q=%24" + tag })
}

// Text applies every replacement and trims the result. An empty string
// means nothing is left to show.
func Text(text, base string) string {
	text = ReplaceMentions(text, base)
	text = ReplaceHashtags(text, base)
	text = ReplaceCashtags(text, base)
	return strings.TrimSpace(text)
}

func replace(p *regexp.Regexp, text, sigil string, link func(string) string) string {
	return p.ReplaceAllStringFunc(text, func(match string) string {
		m := p.FindStringSubmatch(match)
		return m[1] + MaskedLink(sigil+m[2], link(m[2]))
	})
}
