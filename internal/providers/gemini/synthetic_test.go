package gemini

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticClientGeneratesDeterministicPNG(t *testing.T) {
	ctx := context.Background()
	client, err := NewSyntheticFactory()(ctx, "key")
	require.NoError(t, err)

	first, err := client.GenerateContent(ctx, "m", []Part{TextPart("portrait")}, GenerateOptions{AspectRatio: "3:4"})
	require.NoError(t, err)
	second, err := client.GenerateContent(ctx, "m", []Part{TextPart("portrait")}, GenerateOptions{AspectRatio: "3:4"})
	require.NoError(t, err)

	require.Len(t, first.Candidates, 1)
	require.Len(t, first.Candidates[0].Parts, 1)
	data := first.Candidates[0].Parts[0].Data
	assert.Equal(t, data, second.Candidates[0].Parts[0].Data)

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 384, cfg.Width)
	assert.Equal(t, 512, cfg.Height)
}

func TestSyntheticFilesLifecycle(t *testing.T) {
	ctx := context.Background()
	factory := NewSyntheticFactory()
	uploader, err := factory(ctx, "key")
	require.NoError(t, err)

	file, err := uploader.UploadFile(ctx, []byte("img"), "image/png", "ref")
	require.NoError(t, err)
	assert.Equal(t, FileStateActive, file.State)

	// A second client from the same factory sees the same registry.
	other, err := factory(ctx, "key")
	require.NoError(t, err)
	got, err := other.GetFile(ctx, file.Name)
	require.NoError(t, err)
	assert.Equal(t, file.URI, got.URI)

	_, err = other.GenerateContent(ctx, "m", []Part{FilePart(file.URI, "image/png"), TextPart("x")}, GenerateOptions{})
	require.NoError(t, err)

	require.NoError(t, other.DeleteFile(ctx, file.Name))
	_, err = other.GetFile(ctx, file.Name)
	assert.True(t, IsNotFound(err))

	_, err = other.GenerateContent(ctx, "m", []Part{FilePart(file.URI, "image/png")}, GenerateOptions{})
	assert.Error(t, err)
}
