package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"

	"freegames_bot/internal/model"
)

// messagePolicy admits only the markup Telegram's HTML parse mode renders.
var messagePolicy = newMessagePolicy()

func newMessagePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "u", "s", "code", "pre")
	return p
}

// escape turns untrusted feed text into literal HTML text.
func escape(s string) string {
	return html.EscapeString(s)
}

// FormatOffer formats an offer as an HTML notification.
func FormatOffer(o model.Offer) string {
	var b strings.Builder
	b.WriteString("🎁 <b>FREE GAME</b>\n")
	fmt.Fprintf(&b, "🏪 <b>Store:</b> %s\n", strings.ToUpper(string(o.Source)))
	fmt.Fprintf(&b, "🕹️ <b>Title:</b> %s\n", escape(o.Title))
	fmt.Fprintf(&b, "🔗 %s", escape(o.Link))
	return messagePolicy.Sanitize(b.String())
}

// FormatView formats the read-only list of currently available offers.
func FormatView(v model.View) string {
	lines := make([]string, 0, len(v.Offers))
	for _, o := range v.Offers {
		lines = append(lines, fmt.Sprintf("• <b>%s</b> (%s)\n%s",
			escape(o.Title), strings.ToUpper(string(o.Source)), escape(o.Link)))
	}
	return messagePolicy.Sanitize("🎁 <b>Free right now</b>\n\n" + strings.Join(lines, "\n\n"))
}

// FormatSources formats a set of source tags for display.
func FormatSources(set model.SourceSet) string {
	if len(set) == 0 {
		return "NONE"
	}
	tags := set.Sorted()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = strings.ToUpper(string(t))
	}
	return strings.Join(out, ", ")
}

// FormatMute describes the mute state of a subscriber at now.
func FormatMute(sub *model.Subscriber, now time.Time) string {
	if !sub.IsMuted(now) {
		return "No"
	}
	return fmt.Sprintf("Yes, until %s (%s)",
		sub.MutedUntil.UTC().Format("2006-01-02 15:04 UTC"),
		humanize.RelTime(sub.MutedUntil, now, "ago", "from now"))
}

// StatusInfo is the data shown by /status.
type StatusInfo struct {
	Subscriber *model.Subscriber
	Now        time.Time
	Interval   time.Duration
	Feeds      int
	Delivered  int
}

// FormatStatus formats the /status reply.
func FormatStatus(s StatusInfo) string {
	var b strings.Builder
	b.WriteString("📌 Status\n")
	fmt.Fprintf(&b, "Stores: %s\n", FormatSources(s.Subscriber.Interests))
	fmt.Fprintf(&b, "Muted: %s\n", FormatMute(s.Subscriber, s.Now))
	fmt.Fprintf(&b, "Interval: %ds\n", int(s.Interval.Seconds()))
	fmt.Fprintf(&b, "Feeds: %d\n", s.Feeds)
	fmt.Fprintf(&b, "Offers delivered: %s", humanize.Comma(int64(s.Delivered)))
	return b.String()
}

// FormatReport formats the outcome of a manual check.
func FormatReport(r model.DeliveryReport) string {
	var b strings.Builder
	b.WriteString("✅ Check finished.\n")
	fmt.Fprintf(&b, "Sent: %d\n", r.Delivered)
	fmt.Fprintf(&b, "Skipped (already sent): %d\n", r.SkippedDedup)
	fmt.Fprintf(&b, "Skipped (store not active): %d", r.SkippedPreference)
	if r.Failed > 0 {
		fmt.Fprintf(&b, "\nFailed: %d", r.Failed)
	}
	return b.String()
}
