package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitQuotedSpeech(t *testing.T) {
	blocks := Split(`She looked up from the ledger. "You came back," she said quietly.`)

	require.Len(t, blocks, 3)
	assert.Equal(t, Narration, blocks[0].Kind)
	assert.Equal(t, "She looked up from the ledger.", blocks[0].Text)
	assert.Equal(t, Dialogue, blocks[1].Kind)
	assert.Equal(t, `"You came back,"`, blocks[1].Text)
	assert.Equal(t, Narration, blocks[2].Kind)
}

func TestSplitCurlyQuotes(t *testing.T) {
	blocks := Split("“Of course,” he said.")
	require.NotEmpty(t, blocks)
	assert.Equal(t, Dialogue, blocks[0].Kind)
}

func TestSplitAsteriskNarration(t *testing.T) {
	blocks := Split("*The door creaks open slowly*")
	require.Len(t, blocks, 1)
	assert.Equal(t, Narration, blocks[0].Kind)
	assert.Equal(t, "The door creaks open slowly", blocks[0].Text)
}

func TestSplitParagraphsIndependently(t *testing.T) {
	blocks := Split("*A long silence*\n\n\"Fine. Tell me everything.\"")
	require.Len(t, blocks, 2)
	assert.Equal(t, Narration, blocks[0].Kind)
	assert.Equal(t, Dialogue, blocks[1].Kind)
}

func TestSplitCoalescesAdjacentKinds(t *testing.T) {
	blocks := Split("He paused.\n\nHe sat down.")
	require.Len(t, blocks, 1, "adjacent narration paragraphs merge into one block")
	assert.Equal(t, Narration, blocks[0].Kind)
}

func TestSplitUnterminatedQuoteIsDialogue(t *testing.T) {
	blocks := Split(`"Wait, what about the`)
	require.Len(t, blocks, 1)
	assert.Equal(t, Dialogue, blocks[0].Kind)
}

func TestSplitEmptyInput(t *testing.T) {
	assert.Empty(t, Split(""))
	assert.Empty(t, Split("   \n\n  "))
}

func TestSplitPlainTextIsNarration(t *testing.T) {
	blocks := Split("Nothing special here at all.")
	require.Len(t, blocks, 1)
	assert.Equal(t, Narration, blocks[0].Kind)
}
