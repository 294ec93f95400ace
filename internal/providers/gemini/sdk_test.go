package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestToSDKParts(t *testing.T) {
	parts := toSDKParts([]Part{
		FilePart("https://generativelanguage.googleapis.com/v1beta/files/a", "image/png"),
		{MIMEType: "image/jpeg", Data: []byte{1, 2}},
		TextPart("prompt"),
		{},
	})
	require.Len(t, parts, 3)
	require.NotNil(t, parts[0].FileData)
	assert.Equal(t, "image/png", parts[0].FileData.MIMEType)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, []byte{1, 2}, parts[1].InlineData.Data)
	assert.Equal(t, "prompt", parts[2].Text)
}

func TestFromSDKResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				FinishReason: genai.FinishReasonStop,
				Content: &genai.Content{Parts: []*genai.Part{
					{Text: "thinking", Thought: true},
					{Text: "Here is your portrait"},
					{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{9}}},
				}},
			},
			nil,
		},
	}
	out := fromSDKResponse(resp)
	require.Len(t, out.Candidates, 1)
	c := out.Candidates[0]
	assert.Equal(t, string(genai.FinishReasonStop), c.FinishReason)
	require.Len(t, c.Parts, 2)
	assert.Equal(t, "Here is your portrait", c.Parts[0].Text)
	assert.Equal(t, []byte{9}, c.Parts[1].Data)

	assert.Empty(t, fromSDKResponse(nil).Candidates)
}
