package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExportFormat selects an Export rendering.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportMarkdown ExportFormat = "markdown"
	ExportText     ExportFormat = "text"
)

// exportDoc is the JSON export shape; round-tripping this through
// json.Marshal/Unmarshal reproduces the conversation's id, title, messages
// (role and content), summaries and token/cost totals (spec.md §8's export
// round-trip requirement). Message timestamps, names, tool calls and
// metadata are not exported.
type exportDoc struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Messages    []exportMsg `json:"messages"`
	Summaries   []Summary   `json:"summaries"`
	TotalTokens int         `json:"total_tokens"`
	TotalCost   float64     `json:"total_cost"`
}

type exportMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Export renders convID in the requested format.
func (s *Store) Export(convID string, format ExportFormat) (string, error) {
	conv, err := s.get(convID)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	switch format {
	case ExportMarkdown:
		return exportMarkdown(conv), nil
	case ExportText:
		return exportText(conv), nil
	case ExportJSON, "":
		return exportJSON(conv)
	default:
		return "", fmt.Errorf("conversation: unsupported export format %q", format)
	}
}

func exportJSON(conv *Conversation) (string, error) {
	doc := exportDoc{ID: conv.ID, Title: conv.Title, Summaries: conv.Summaries, TotalTokens: conv.TotalTokens, TotalCost: conv.TotalCost}
	for _, m := range conv.Messages {
		doc.Messages = append(doc.Messages, exportMsg{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func exportMarkdown(conv *Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	for _, m := range conv.Messages {
		fmt.Fprintf(&b, "**%s**: %s\n\n", m.Role, m.Content)
	}
	if len(conv.Summaries) > 0 {
		b.WriteString("## Summaries\n\n")
		for _, s := range conv.Summaries {
			fmt.Fprintf(&b, "- (%d-%d) %s\n", s.StartIndex, s.EndIndex, s.Content)
		}
	}
	return b.String()
}

func exportText(conv *Conversation) string {
	var b strings.Builder
	for _, m := range conv.Messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}
