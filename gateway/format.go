package gateway

import (
	"html"
	"sort"

	"github.com/simbabque/twirc/twitterapi"
)

// FormatStatus renders a status for the channel. Reshares are unwrapped to
// the original status, URL entities are replaced with their expanded form,
// and HTML entities are decoded. Pure: no side effects, same input always
// renders the same text.
func FormatStatus(st *twitterapi.Status) string {
	body := st
	reshare := st.RetweetedStatus != nil
	if reshare {
		body = st.RetweetedStatus
	}
	text := expandURLs(body.Text, body.Entities.URLs)
	text = html.UnescapeString(text)
	if reshare {
		text = "RT @" + body.User.ScreenName + ": " + text
	}
	return text
}

// FormatDirectMessage renders a DM body for delivery as a private message.
func FormatDirectMessage(dm *twitterapi.DirectMessage) string {
	return html.UnescapeString(dm.Text)
}

// expandURLs substitutes each URL-entity span with "[display](expanded)".
// Indices are rune offsets; spans are applied in descending start order so
// earlier replacements never shift the offsets of later ones.
func expandURLs(text string, urls []twitterapi.URLEntity) string {
	if len(urls) == 0 {
		return text
	}
	runes := []rune(text)
	spans := make([]twitterapi.URLEntity, 0, len(urls))
	for _, u := range urls {
		if len(u.Indices) != 2 {
			continue
		}
		start, end := u.Indices[0], u.Indices[1]
		if start < 0 || end > len(runes) || start >= end {
			continue
		}
		spans = append(spans, u)
	}
	sort.Slice(spans, func(i, j int) bool {
		return spans[i].Indices[0] > spans[j].Indices[0]
	})
	for _, u := range spans {
		start, end := u.Indices[0], u.Indices[1]
		replacement := []rune("[" + u.DisplayURL + "](" + u.ExpandedURL + ")")
		runes = append(runes[:start], append(replacement, runes[end:]...)...)
	}
	return string(runes)
}
