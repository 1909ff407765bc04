package transcript

import "github.com/ragdesk/ragdesk/internal/models"

// BlockKind names one section of a rendered message.
type BlockKind string

const (
	BlockText             BlockKind = "text"
	BlockAnswer           BlockKind = "answer"
	BlockExecutiveSummary BlockKind = "executive_summary"
	BlockSupportingFacts  BlockKind = "supporting_facts"
	BlockSources          BlockKind = "sources"
	BlockRevalidations    BlockKind = "revalidations"
)

// visibleFacts is how many supporting facts are shown before "show more".
const visibleFacts = 2

// Block is one display section of a message.
type Block struct {
	Kind  BlockKind `json:"kind"`
	Title string    `json:"title,omitempty"`
	Text  string    `json:"text,omitempty"`
	Items []string  `json:"items,omitempty"`

	// Hidden counts list items collapsed behind a "show more" control.
	Hidden int `json:"hidden,omitempty"`

	Revalidations []models.Revalidation `json:"revalidations,omitempty"`
}

// HasStructured reports whether an AI message carries any structured section.
func HasStructured(m models.DisplayMessage) bool {
	return m.Answer != "" ||
		len(m.ExecutiveSummary) > 0 ||
		len(m.SupportingFacts) > 0 ||
		len(m.Sources) > 0
}

// Blocks lays a message out as display sections. Structured AI answers
// render section by section; AI messages without structure fall back to
// their plain text. A message with nothing to show yields no blocks.
func Blocks(m models.DisplayMessage) []Block {
	var blocks []Block

	switch m.Sender {
	case models.SenderUser:
		if m.Text != "" {
			blocks = append(blocks, Block{Kind: BlockText, Text: m.Text})
		}
		return blocks

	case models.SenderAI:
		if !HasStructured(m) {
			if m.Text != "" {
				blocks = append(blocks, Block{Kind: BlockText, Text: m.Text})
			}
			break
		}
		if m.Answer != "" {
			blocks = append(blocks, Block{Kind: BlockAnswer, Title: "Answer", Text: m.Answer})
		}
		if len(m.ExecutiveSummary) > 0 {
			blocks = append(blocks, Block{Kind: BlockExecutiveSummary, Title: "Executive Summary", Items: m.ExecutiveSummary})
		}
		if len(m.SupportingFacts) > 0 {
			shown := m.SupportingFacts
			hidden := 0
			if len(shown) > visibleFacts {
				hidden = len(shown) - visibleFacts
				shown = shown[:visibleFacts]
			}
			blocks = append(blocks, Block{Kind: BlockSupportingFacts, Title: "Supporting Facts", Items: shown, Hidden: hidden})
		}
		if len(m.Sources) > 0 {
			blocks = append(blocks, Block{Kind: BlockSources, Title: "Sources", Items: m.Sources})
		}
	}

	if m.Sender == models.SenderAI && len(m.Revalidations) > 0 {
		blocks = append(blocks, Block{
			Kind:          BlockRevalidations,
			Title:         "Revalidated Responses",
			Revalidations: m.Revalidations,
		})
	}
	return blocks
}
