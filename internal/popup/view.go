package popup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/okian/abrantes/internal/domain/model"
)

const (
	defaultHistoryLimit = 20
	clearScreen         = "\x1b[H\x1b[2J"
	noTime              = "—"
)

// TextRenderer writes a plain-text view of a tab.
type TextRenderer struct {
	mu           sync.Mutex
	w            io.Writer
	loc          *time.Location
	clear        bool
	historyLimit int
}

// NewTextRenderer creates a renderer writing to w.
func NewTextRenderer(w io.Writer, opts ...ViewOption) *TextRenderer {
	r := &TextRenderer{w: w, loc: time.Local, historyLimit: defaultHistoryLimit}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render writes the view of state.
func (r *TextRenderer) Render(tabID int, state model.TabState) error {
	var buf bytes.Buffer
	if r.clear {
		buf.WriteString(clearScreen)
	}
	r.write(&buf, tabID, state.Normalize(len(state.History)))

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.w.Write(buf.Bytes())
	return err
}

func (r *TextRenderer) write(buf *bytes.Buffer, tabID int, state model.TabState) {
	fmt.Fprintf(buf, "%s\n%s\n\n", pageInfo(tabID, state), StatusLine(state))

	tw := tabwriter.NewWriter(buf, 0, 4, 2, ' ', 0)
	for _, name := range model.EventNames() {
		ev := state.Events[name]
		mark := "·"
		if ev.Count > 0 {
			mark = "✓"
		}
		last := noTime
		if ev.Last != nil {
			last = r.fmtTime(ev.Last.Timestamp)
		}
		fmt.Fprintf(tw, "%s %s\tCount: %d\tLast: %s\n", mark, name, ev.Count, last)
	}
	_ = tw.Flush()

	for _, name := range model.EventNames() {
		ev := state.Events[name]
		fmt.Fprintf(buf, "\n%s last payload:\n", name)
		if ev.Last == nil {
			buf.WriteString(indent("No data yet."))
			continue
		}
		buf.WriteString(indent(pretty(ev.Last)))
	}

	history := Newest(state.History, r.historyLimit)
	fmt.Fprintf(buf, "\nHistory (%d of %d, newest first)\n", len(history), len(state.History))
	for _, rec := range history {
		name := rec.EventName
		if name == "" {
			name = "abrantes:*"
		}
		fmt.Fprintf(buf, "  %s  %s\n", r.fmtTime(rec.Timestamp), name)
		buf.WriteString(indent(indent(pretty(rec.Detail))))
	}
}

func (r *TextRenderer) fmtTime(ts int64) string {
	if ts == 0 {
		return noTime
	}
	return time.UnixMilli(ts).In(r.loc).Format("15:04:05")
}

// StatusLine summarises the lifetime counters of state.
func StatusLine(state model.TabState) string {
	total := state.Total()
	switch total {
	case 0:
		return "No Abrantes events seen on this tab yet."
	case 1:
		return "Seen 1 Abrantes event on this tab."
	default:
		return fmt.Sprintf("Seen %d Abrantes events on this tab.", total)
	}
}

// Newest returns up to limit records, most recent first.
func Newest(history []model.EventRecord, limit int) []model.EventRecord {
	n := len(history)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]model.EventRecord, 0, n)
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, history[i])
	}
	return out
}

// pageInfo names the tab and, when known, the host of its latest event.
func pageInfo(tabID int, state model.TabState) string {
	info := fmt.Sprintf("Tab %d", tabID)
	if n := len(state.History); n > 0 {
		href := state.History[n-1].Href
		if u, err := url.Parse(href); err == nil && u.Host != "" {
			return info + " · " + u.Host
		} else if href != "" {
			return info + " · " + href
		}
	}
	return info
}

func pretty(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n") + "\n"
}
