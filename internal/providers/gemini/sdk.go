package gemini

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Options configures SDK-backed clients.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

// SDKClient talks to the Gemini API through google.golang.org/genai.
type SDKClient struct {
	client *genai.Client
}

// NewFactory returns a Factory producing SDK clients that share opts.
func NewFactory(opts Options) Factory {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	return func(ctx context.Context, apiKey string) (Client, error) {
		return NewSDKClient(ctx, apiKey, opts)
	}
}

// NewSDKClient builds a client bound to apiKey.
func NewSDKClient(ctx context.Context, apiKey string, opts Options) (*SDKClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, Classify(err)
	}
	return &SDKClient{client: client}, nil
}

func (c *SDKClient) GenerateContent(ctx context.Context, model string, parts []Part, opts GenerateOptions) (*Response, error) {
	contents := []*genai.Content{genai.NewContentFromParts(toSDKParts(parts), genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if opts.AspectRatio != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: opts.AspectRatio}
	}
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, Classify(err)
	}
	return fromSDKResponse(resp), nil
}

func (c *SDKClient) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (*RemoteFile, error) {
	file, err := c.client.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, Classify(err)
	}
	return fromSDKFile(file), nil
}

func (c *SDKClient) GetFile(ctx context.Context, name string) (*RemoteFile, error) {
	file, err := c.client.Files.Get(ctx, name, nil)
	if err != nil {
		return nil, Classify(err)
	}
	return fromSDKFile(file), nil
}

func (c *SDKClient) DeleteFile(ctx context.Context, name string) error {
	if _, err := c.client.Files.Delete(ctx, name, nil); err != nil {
		return Classify(err)
	}
	return nil
}

func toSDKParts(parts []Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.FileURI != "":
			out = append(out, genai.NewPartFromURI(p.FileURI, p.MIMEType))
		case len(p.Data) > 0:
			out = append(out, &genai.Part{InlineData: &genai.Blob{MIMEType: p.MIMEType, Data: p.Data}})
		case p.Text != "":
			out = append(out, genai.NewPartFromText(p.Text))
		}
	}
	return out
}

func fromSDKResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil {
		return out
	}
	if resp.PromptFeedback != nil {
		out.BlockReason = string(resp.PromptFeedback.BlockReason)
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		c := Candidate{FinishReason: string(cand.FinishReason)}
		if cand.Content != nil {
			for _, p := range cand.Content.Parts {
				if p == nil || p.Thought {
					continue
				}
				switch {
				case p.InlineData != nil && len(p.InlineData.Data) > 0:
					c.Parts = append(c.Parts, Part{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data})
				case p.FileData != nil:
					c.Parts = append(c.Parts, Part{FileURI: p.FileData.FileURI, MIMEType: p.FileData.MIMEType})
				case p.Text != "":
					c.Parts = append(c.Parts, Part{Text: p.Text})
				}
			}
		}
		out.Candidates = append(out.Candidates, c)
	}
	return out
}

func fromSDKFile(f *genai.File) *RemoteFile {
	if f == nil {
		return nil
	}
	return &RemoteFile{
		Name:     f.Name,
		URI:      f.URI,
		MIMEType: f.MIMEType,
		State:    FileState(f.State),
	}
}
