package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ShotType is the framing requested for the avatar.
type ShotType string

const (
	ShotHeadshot  ShotType = "headshot"
	ShotUpperBody ShotType = "upper_body"
	ShotHalfBody  ShotType = "half_body"
	ShotFullBody  ShotType = "full_body"
)

// Background is the backdrop preset. BackgroundCustom uses the free text in
// GenerationConfig.CustomBackground.
type Background string

const (
	BackgroundWhite    Background = "white"
	BackgroundGray     Background = "studio_gray"
	BackgroundOffice   Background = "office"
	BackgroundOutdoor  Background = "outdoor"
	BackgroundGradient Background = "gradient"
	BackgroundCustom   Background = "custom"
)

var (
	allowedShotTypes = map[ShotType]struct{}{
		ShotHeadshot: {}, ShotUpperBody: {}, ShotHalfBody: {}, ShotFullBody: {},
	}
	allowedBackgrounds = map[Background]struct{}{
		BackgroundWhite: {}, BackgroundGray: {}, BackgroundOffice: {},
		BackgroundOutdoor: {}, BackgroundGradient: {}, BackgroundCustom: {},
	}
	allowedAspectRatios = map[string]struct{}{
		"1:1": {}, "3:4": {}, "4:3": {}, "9:16": {}, "16:9": {},
	}
)

const (
	DefaultAspectRatio      = "1:1"
	DefaultImageCount       = 1
	MaxImageCount           = 4
	MaxReferenceImages      = 3
	MaxPromptLength         = 1000
	MaxCustomBackgroundText = 200
)

// ImageCount accepts either a bare number or a single-element array, since
// clients submit the value straight from a multi-select form control.
type ImageCount int

func (c *ImageCount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var list []int
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("image_count: %w", err)
		}
		if len(list) != 1 {
			return fmt.Errorf("image_count: expected a single value, got %d", len(list))
		}
		*c = ImageCount(list[0])
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("image_count: %w", err)
	}
	*c = ImageCount(n)
	return nil
}

// GenerationConfig is the user-submitted configuration shared by every task
// of one batch. It is stored verbatim in each task's metadata.
type GenerationConfig struct {
	ImageCount       ImageCount `json:"image_count"`
	ShotType         ShotType   `json:"shot_type"`
	AspectRatio      string     `json:"aspect_ratio"`
	Background       Background `json:"background"`
	CustomBackground string     `json:"custom_background,omitempty"`
	Prompt           string     `json:"prompt,omitempty"`
	ReferenceImages  []string   `json:"reference_images,omitempty"`
	Model            string     `json:"model,omitempty"`
}

// CleanText trims s and puts it in Unicode NFC, so length limits and the
// stored text do not depend on how the client composed accents.
func CleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func foldLabel(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Normalize cleans free text, case-folds the enum labels and applies
// defaults. It never writes through to the caller's slices.
func (c *GenerationConfig) Normalize(defaultModel string) {
	if c == nil {
		return
	}
	if c.ImageCount <= 0 {
		c.ImageCount = DefaultImageCount
	}
	c.AspectRatio = strings.TrimSpace(c.AspectRatio)
	if c.AspectRatio == "" {
		c.AspectRatio = DefaultAspectRatio
	}
	c.ShotType = ShotType(foldLabel(string(c.ShotType)))
	c.Background = Background(foldLabel(string(c.Background)))
	c.CustomBackground = CleanText(c.CustomBackground)
	c.Prompt = CleanText(c.Prompt)
	c.Model = strings.TrimSpace(c.Model)
	if c.Model == "" {
		c.Model = defaultModel
	}
	refs := make([]string, 0, len(c.ReferenceImages))
	for _, ref := range c.ReferenceImages {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	c.ReferenceImages = refs
}

// Validate rejects configurations before any task row is created.
func (c GenerationConfig) Validate() error {
	if c.ImageCount < 1 || c.ImageCount > MaxImageCount {
		return NewValidationError("image_count", fmt.Sprintf("must be between 1 and %d", MaxImageCount))
	}
	if _, ok := allowedShotTypes[c.ShotType]; !ok {
		return NewValidationError("shot_type", "must be one of headshot, upper_body, half_body, full_body")
	}
	if _, ok := allowedAspectRatios[c.AspectRatio]; !ok {
		return NewValidationError("aspect_ratio", "must be one of 1:1, 3:4, 4:3, 9:16, 16:9")
	}
	if _, ok := allowedBackgrounds[c.Background]; !ok {
		return NewValidationError("background", "must be one of white, studio_gray, office, outdoor, gradient, custom")
	}
	if c.Background == BackgroundCustom && c.CustomBackground == "" {
		return NewValidationError("custom_background", "is required when background is custom")
	}
	if len([]rune(c.CustomBackground)) > MaxCustomBackgroundText {
		return NewValidationError("custom_background", fmt.Sprintf("must be at most %d characters", MaxCustomBackgroundText))
	}
	if len([]rune(c.Prompt)) > MaxPromptLength {
		return NewValidationError("prompt", fmt.Sprintf("must be at most %d characters", MaxPromptLength))
	}
	if len(c.ReferenceImages) > MaxReferenceImages {
		return NewValidationError("reference_images", fmt.Sprintf("at most %d references are allowed", MaxReferenceImages))
	}
	for _, ref := range c.ReferenceImages {
		if _, err := ParseReference(ref); err != nil {
			return NewValidationError("reference_images", err.Error())
		}
	}
	if c.Model == "" {
		return NewValidationError("model", "is required")
	}
	return nil
}
