package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/ragdesk/internal/models"
)

func TestBlocks(t *testing.T) {
	reval := models.Revalidation{ID: "a-reval-v2", Version: 2, RegeneratedResponse: "again"}

	tests := []struct {
		name  string
		msg   models.DisplayMessage
		kinds []BlockKind
	}{
		{
			name:  "user text",
			msg:   models.DisplayMessage{Sender: models.SenderUser, Text: "hi"},
			kinds: []BlockKind{BlockText},
		},
		{
			name:  "empty user message",
			msg:   models.DisplayMessage{Sender: models.SenderUser},
			kinds: nil,
		},
		{
			name:  "ai plain text",
			msg:   models.DisplayMessage{Sender: models.SenderAI, Text: "plain"},
			kinds: []BlockKind{BlockText},
		},
		{
			name:  "ai with nothing",
			msg:   models.DisplayMessage{Sender: models.SenderAI},
			kinds: nil,
		},
		{
			name: "ai structured in fixed order",
			msg: models.DisplayMessage{
				Sender:           models.SenderAI,
				Text:             "A",
				Answer:           "A",
				ExecutiveSummary: []string{"s"},
				SupportingFacts:  []string{"f"},
				Sources:          []string{"src"},
			},
			kinds: []BlockKind{BlockAnswer, BlockExecutiveSummary, BlockSupportingFacts, BlockSources},
		},
		{
			name:  "ai sources only",
			msg:   models.DisplayMessage{Sender: models.SenderAI, Text: `{"sources":["x"]}`, Sources: []string{"x"}},
			kinds: []BlockKind{BlockSources},
		},
		{
			name:  "ai with revalidations",
			msg:   models.DisplayMessage{Sender: models.SenderAI, Text: "A", Answer: "A", Revalidations: []models.Revalidation{reval}},
			kinds: []BlockKind{BlockAnswer, BlockRevalidations},
		},
		{
			name:  "user revalidations are not rendered",
			msg:   models.DisplayMessage{Sender: models.SenderUser, Text: "q", Revalidations: []models.Revalidation{reval}},
			kinds: []BlockKind{BlockText},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := Blocks(tt.msg)
			var kinds []BlockKind
			for _, b := range blocks {
				kinds = append(kinds, b.Kind)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestBlocksSupportingFactsCollapse(t *testing.T) {
	msg := models.DisplayMessage{
		Sender:          models.SenderAI,
		SupportingFacts: []string{"f1", "f2", "f3", "f4", "f5"},
	}

	blocks := Blocks(msg)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Supporting Facts", blocks[0].Title)
	assert.Equal(t, []string{"f1", "f2"}, blocks[0].Items)
	assert.Equal(t, 3, blocks[0].Hidden)
}

func TestBlocksRevalidationTitle(t *testing.T) {
	msg := models.DisplayMessage{
		Sender:        models.SenderAI,
		Text:          "t",
		Revalidations: []models.Revalidation{{ID: "1-reval-v2", Version: 2}},
	}

	blocks := Blocks(msg)
	require.Len(t, blocks, 2)
	assert.Equal(t, "Revalidated Responses", blocks[1].Title)
	assert.Len(t, blocks[1].Revalidations, 1)
}
