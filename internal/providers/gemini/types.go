// Package gemini is the provider boundary for the Gemini API. It exposes
// provider-neutral request and response values and tagged errors so callers
// never inspect SDK types or error strings.
package gemini

import "context"

// Part is one element of a multimodal request or response.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
	// FileURI references a Files API resource instead of inline data.
	FileURI string
}

func TextPart(text string) Part { return Part{Text: text} }

func FilePart(uri, mimeType string) Part { return Part{FileURI: uri, MIMEType: mimeType} }

// Candidate is one model output.
type Candidate struct {
	Parts        []Part
	FinishReason string
}

// Response is the normalized generateContent result.
type Response struct {
	Candidates  []Candidate
	BlockReason string
}

// GenerateOptions carries per-call generation settings.
type GenerateOptions struct {
	AspectRatio string
}

// FileState is the processing state of an uploaded file.
type FileState string

const (
	FileStateUnspecified FileState = "STATE_UNSPECIFIED"
	FileStateProcessing  FileState = "PROCESSING"
	FileStateActive      FileState = "ACTIVE"
	FileStateFailed      FileState = "FAILED"
)

// RemoteFile is a handle to a Files API resource. Name ("files/<id>") is
// required for status checks and deletion.
type RemoteFile struct {
	Name     string
	URI      string
	MIMEType string
	State    FileState
}

// Client is the subset of the Gemini API the pipeline uses. A Client is
// bound to one API key.
type Client interface {
	GenerateContent(ctx context.Context, model string, parts []Part, opts GenerateOptions) (*Response, error)
	UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (*RemoteFile, error)
	GetFile(ctx context.Context, name string) (*RemoteFile, error)
	DeleteFile(ctx context.Context, name string) error
}

// Factory builds a Client for one resolved API key. The pipeline calls it
// once per task attempt; there is no shared client.
type Factory func(ctx context.Context, apiKey string) (Client, error)
