package chat

import (
	"fmt"
	"strings"
)

// SystemPrompt frames the assistant as a marketplace analytics expert.
const SystemPrompt = `You are an expert analyst for marketplace sellers. Your task is to analyze data scraped from the seller's analytics pages and answer the user's questions.

Rules:
1. Analyze the provided data and give concrete answers.
2. If the data is insufficient, say so honestly.
3. Use numbers and percentages from the data where appropriate.
4. Give practical recommendations to the seller.
5. Be concise but informative.
6. Highlight key figures in bold (**text**).
7. Point out problems or anomalies you see in the data.`

// FormatSnapshot renders the snapshot as a single structured prompt block:
// headings, tables (capped rows with a "+K more rows" marker), deduplicated
// metrics and chart descriptors.
func FormatSnapshot(s *PageSnapshot) string {
	var b strings.Builder

	b.WriteString("## Page data\n\n")
	fmt.Fprintf(&b, "**URL:** %s\n", s.URL)
	fmt.Fprintf(&b, "**Title:** %s\n", s.PageTitle)
	fmt.Fprintf(&b, "**Captured:** %s\n\n", s.Timestamp)

	if len(s.Texts) > 0 {
		b.WriteString("### Headings:\n")
		for _, t := range s.Texts {
			fmt.Fprintf(&b, "- %s: %s\n", t.Type, t.Content)
		}
		b.WriteString("\n")
	}

	if len(s.Tables) > 0 {
		b.WriteString("### Tables:\n")
		for i, table := range s.Tables {
			fmt.Fprintf(&b, "\n**Table %d:**\n", i+1)
			if len(table.Headers) > 0 {
				fmt.Fprintf(&b, "Headers: %s\n", strings.Join(table.Headers, " | "))
			}
			if len(table.Rows) > 0 {
				b.WriteString("Rows:\n")
				rows := table.Rows
				truncated := 0
				if len(rows) > maxPromptTableRows {
					truncated = len(rows) - maxPromptTableRows
					rows = rows[:maxPromptTableRows]
				}
				for _, row := range rows {
					fmt.Fprintf(&b, "  %s\n", strings.Join(row, " | "))
				}
				if truncated > 0 {
					fmt.Fprintf(&b, "  ... +%d more rows\n", truncated)
				}
			}
		}
		b.WriteString("\n")
	}

	if len(s.Metrics) > 0 {
		b.WriteString("### Metrics:\n")
		seen := make(map[string]struct{}, len(s.Metrics))
		count := 0
		for _, m := range s.Metrics {
			line := m.Context
			if line == "" {
				line = m.Content
			}
			if line == "" {
				continue
			}
			if _, dup := seen[metricKey(line)]; dup {
				continue
			}
			seen[metricKey(line)] = struct{}{}
			fmt.Fprintf(&b, "- %s\n", line)
			count++
			if count >= maxPromptMetrics {
				break
			}
		}
		b.WriteString("\n")
	}

	if len(s.Charts) > 0 {
		b.WriteString("### Charts:\n")
		for i, chart := range s.Charts {
			fmt.Fprintf(&b, "- Chart %d:", i+1)
			if chart.AriaLabel != "" {
				fmt.Fprintf(&b, " %s", chart.AriaLabel)
			}
			if chart.Title != "" {
				fmt.Fprintf(&b, " %s", chart.Title)
			}
			if chart.Legend != "" {
				fmt.Fprintf(&b, " (%s)", chart.Legend)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// metricKey dedupes near-identical metric lines by a short content key.
func metricKey(line string) string {
	k := strings.ToLower(strings.Join(strings.Fields(line), " "))
	if len(k) > 64 {
		k = k[:64]
	}
	return k
}

// BuildUserTurn joins the snapshot block and the question into the single
// user-turn payload sent upstream.
func BuildUserTurn(s *PageSnapshot, question string) string {
	return fmt.Sprintf("%s\n\n---\n\n**Question:** %s", FormatSnapshot(s), question)
}
