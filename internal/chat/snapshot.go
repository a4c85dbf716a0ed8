package chat

import "strings"

// PageSnapshot is the bounded structured extraction the extension scrapes from
// the visible page. Every field is best-effort; an empty snapshot is valid.
type PageSnapshot struct {
	URL       string       `json:"url"`
	PageTitle string       `json:"pageTitle"`
	Timestamp string       `json:"timestamp"`
	Tables    []TableData  `json:"tables,omitempty"`
	Metrics   []MetricData `json:"metrics,omitempty"`
	Charts    []ChartData  `json:"charts,omitempty"`
	Texts     []TextData   `json:"texts,omitempty"`
}

type TableData struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

type MetricData struct {
	Content string `json:"content,omitempty"`
	Value   string `json:"value,omitempty"`
	Context string `json:"context,omitempty"`
}

type ChartData struct {
	Type      string `json:"type,omitempty"`
	AriaLabel string `json:"ariaLabel,omitempty"`
	Title     string `json:"title,omitempty"`
	Legend    string `json:"legend,omitempty"`
}

type TextData struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Caps bound prompt size and therefore cost. The extension caps the snapshot
// on its side too; the server re-caps before formatting.
const (
	maxSnapshotTables  = 10
	maxSnapshotMetrics = 100
	maxPromptTableRows = 20
	maxPromptMetrics   = 50
)

// Clamp trims the snapshot to the caps in place.
func (s *PageSnapshot) Clamp() {
	if len(s.Tables) > maxSnapshotTables {
		s.Tables = s.Tables[:maxSnapshotTables]
	}
	if len(s.Metrics) > maxSnapshotMetrics {
		s.Metrics = s.Metrics[:maxSnapshotMetrics]
	}
}

// Session domains. A small enumerated set: unknown hosts all fold into
// DomainUnknown rather than producing unbounded domain values.
const (
	DomainSellerConsole = "seller-console"
	DomainPublicSite    = "public-site"
	DomainUnknown       = "unknown"
)

// DomainFromURL maps a page URL to the session domain.
func DomainFromURL(url, sellerHost, publicHost string) string {
	switch {
	case sellerHost != "" && strings.Contains(url, sellerHost):
		return DomainSellerConsole
	case publicHost != "" && strings.Contains(url, publicHost):
		return DomainPublicSite
	default:
		return DomainUnknown
	}
}
