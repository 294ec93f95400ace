package imagegen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"avatarstudio/internal/domain"
	"avatarstudio/internal/infra"
	"avatarstudio/internal/providers/gemini"
)

const maxRefusalText = 500

// InvokeRequest is one generation call.
type InvokeRequest struct {
	Model       string
	Prompt      string
	References  []gemini.Part
	AspectRatio string
}

// Image is the decoded model output.
type Image struct {
	Data     []byte
	MIMEType string
}

// Invoker performs exactly one model call per Invoke. It never retries.
type Invoker struct {
	logger infra.Logger
}

func NewInvoker(logger infra.Logger) *Invoker {
	return &Invoker{logger: infra.Component(logger, "invoker")}
}

// Invoke sends the references followed by the prompt and extracts the first
// inline image. Failures are domain.ErrNoCandidates, *domain.RefusalError,
// a classified invalid-request error, or the provider error unchanged.
func (i *Invoker) Invoke(ctx context.Context, client gemini.Client, req InvokeRequest) (*Image, error) {
	parts := make([]gemini.Part, 0, len(req.References)+1)
	parts = append(parts, req.References...)
	parts = append(parts, gemini.TextPart(req.Prompt))

	started := time.Now()
	resp, err := client.GenerateContent(ctx, req.Model, parts, gemini.GenerateOptions{AspectRatio: req.AspectRatio})
	i.logger.Debug().
		Str("model", req.Model).
		Int("references", len(req.References)).
		Dur("duration", time.Since(started)).
		Bool("ok", err == nil).
		Msg("generate content")
	if err != nil {
		return nil, gemini.Classify(err)
	}
	return extractImage(resp)
}

func extractImage(resp *gemini.Response) (*Image, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.BlockReason != "" {
			return nil, fmt.Errorf("%w: prompt blocked (%s)", domain.ErrNoCandidates, resp.BlockReason)
		}
		return nil, domain.ErrNoCandidates
	}

	var texts []string
	finish := ""
	for _, cand := range resp.Candidates {
		if finish == "" {
			finish = cand.FinishReason
		}
		for _, part := range cand.Parts {
			if len(part.Data) > 0 && strings.HasPrefix(part.MIMEType, "image/") {
				return &Image{Data: part.Data, MIMEType: part.MIMEType}, nil
			}
			if text := strings.TrimSpace(part.Text); text != "" {
				texts = append(texts, text)
			}
		}
	}
	if len(texts) > 0 {
		return nil, &domain.RefusalError{Text: truncateRunes(strings.Join(texts, " "), maxRefusalText)}
	}
	if finish != "" {
		return nil, fmt.Errorf("%w: candidate ended with %s and no content", domain.ErrNoCandidates, finish)
	}
	return nil, domain.ErrNoCandidates
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
