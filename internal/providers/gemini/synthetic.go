package gemini

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"avatarstudio/internal/domain"
)

// SyntheticClient renders deterministic placeholder images and keeps an
// in-memory Files API. It lets the whole pipeline run locally without a
// provider account.
type SyntheticClient struct {
	apiKey string
	files  *syntheticFiles
}

type syntheticFiles struct {
	mu    sync.Mutex
	seq   int
	items map[string]*RemoteFile
}

// NewSyntheticFactory returns a Factory whose clients share one in-memory
// file registry.
func NewSyntheticFactory() Factory {
	files := &syntheticFiles{items: map[string]*RemoteFile{}}
	return func(ctx context.Context, apiKey string) (Client, error) {
		return &SyntheticClient{apiKey: apiKey, files: files}, nil
	}
}

func (c *SyntheticClient) GenerateContent(ctx context.Context, model string, parts []Part, opts GenerateOptions) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var prompt strings.Builder
	for _, p := range parts {
		if p.FileURI != "" {
			if _, ok := c.files.byURI(p.FileURI); !ok {
				return nil, &ProviderError{Kind: KindInvalidRequest, Code: 400, Status: "INVALID_ARGUMENT", Message: "file " + p.FileURI + " is not available"}
			}
		}
		prompt.WriteString(p.Text)
	}
	width, height := normalizeAspect(opts.AspectRatio)
	seed := deterministicSeed(model, prompt.String(), opts.AspectRatio)
	data := renderSyntheticImage(width, height, seed)
	if data == nil {
		return nil, fmt.Errorf("synthetic: render failed")
	}
	return &Response{Candidates: []Candidate{{
		Parts:        []Part{{MIMEType: "image/png", Data: data}},
		FinishReason: "STOP",
	}}}, nil
}

func (c *SyntheticClient) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (*RemoteFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.files.mu.Lock()
	defer c.files.mu.Unlock()
	c.files.seq++
	id := deterministicSeed(displayName, c.files.seq, len(data))
	f := &RemoteFile{
		Name:     "files/" + id,
		URI:      "https://" + domain.FilesAPIHost + "/v1beta/files/" + id,
		MIMEType: mimeType,
		State:    FileStateActive,
	}
	c.files.items[f.Name] = f
	cp := *f
	return &cp, nil
}

func (c *SyntheticClient) GetFile(ctx context.Context, name string) (*RemoteFile, error) {
	c.files.mu.Lock()
	defer c.files.mu.Unlock()
	f, ok := c.files.items[name]
	if !ok {
		return nil, &ProviderError{Kind: KindNotFound, Code: 404, Status: "NOT_FOUND", Message: name}
	}
	cp := *f
	return &cp, nil
}

func (c *SyntheticClient) DeleteFile(ctx context.Context, name string) error {
	c.files.mu.Lock()
	defer c.files.mu.Unlock()
	if _, ok := c.files.items[name]; !ok {
		return &ProviderError{Kind: KindNotFound, Code: 404, Status: "NOT_FOUND", Message: name}
	}
	delete(c.files.items, name)
	return nil
}

func (s *syntheticFiles) byURI(uri string) (*RemoteFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.items {
		if f.URI == uri {
			return f, true
		}
	}
	return nil, false
}

func renderSyntheticImage(width, height int, seed string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	// Head and shoulders silhouette so the placeholder reads as a portrait.
	cx, cy := width/2, height*2/5
	r := min(width, height) / 6
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
				img.Set(x, y, accent)
			}
		}
	}
	shoulders := image.Rect(cx-2*r, cy+r+r/3, cx+2*r, height)
	draw.Draw(img, shoulders.Intersect(img.Bounds()), &image.Uniform{accent}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: parseHexByte(segment[0:2]), G: parseHexByte(segment[2:4]), B: parseHexByte(segment[4:6]), A: 255}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(hasher, "%v|", part)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// normalizeAspect maps the supported ratios to small placeholder sizes.
func normalizeAspect(aspect string) (int, int) {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return 512, 288
	case "9:16":
		return 288, 512
	case "4:3":
		return 512, 384
	case "3:4":
		return 384, 512
	default:
		return 512, 512
	}
}
