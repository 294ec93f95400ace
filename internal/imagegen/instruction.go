// Package imagegen composes model instructions and performs the single
// generation call of a task attempt.
package imagegen

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"avatarstudio/internal/domain"
)

// DefaultPoses is the rotation applied across the images of one batch.
var DefaultPoses = []string{
	"facing the camera squarely with a relaxed, confident expression",
	"turned three-quarters to the left while looking into the lens",
	"turned three-quarters to the right with a subtle smile",
	"arms loosely crossed with shoulders square to the camera",
	"head tilted slightly with a warm, approachable smile",
	"glancing just past the camera in a natural candid moment",
}

var shotPhrases = map[domain.ShotType]string{
	domain.ShotHeadshot:  "a tight headshot framed from the shoulders up",
	domain.ShotUpperBody: "an upper-body portrait framed from the chest up",
	domain.ShotHalfBody:  "a half-body portrait framed from the waist up",
	domain.ShotFullBody:  "a full-body portrait showing the subject head to toe",
}

var backgroundPhrases = map[domain.Background]string{
	domain.BackgroundWhite:    "a clean seamless white studio backdrop",
	domain.BackgroundGray:     "a neutral gray studio backdrop with soft falloff",
	domain.BackgroundOffice:   "a softly blurred modern office interior",
	domain.BackgroundOutdoor:  "a softly blurred outdoor setting in natural daylight",
	domain.BackgroundGradient: "a smooth professional color gradient backdrop",
}

// InstructionRequest is everything the image instruction depends on.
type InstructionRequest struct {
	Config        domain.GenerationConfig
	Pose          string
	HasReferences bool
}

// PoseFor returns poses[index mod len(poses)], or "" for an empty list.
func PoseFor(poses []string, index int) string {
	if len(poses) == 0 {
		return ""
	}
	i := index % len(poses)
	if i < 0 {
		i += len(poses)
	}
	return poses[i]
}

// BuildInstruction renders the text prompt for one avatar image.
func BuildInstruction(req InstructionRequest) string {
	cfg := req.Config
	parts := []string{}

	shot, ok := shotPhrases[cfg.ShotType]
	if !ok {
		shot = "a portrait"
	}
	if req.HasReferences {
		parts = append(parts, fmt.Sprintf("Create %s of the person shown in the reference images, preserving their facial features, skin tone and hairstyle exactly.", shot))
	} else {
		parts = append(parts, fmt.Sprintf("Create %s of a professional-looking person.", shot))
	}
	if pose := strings.TrimSpace(req.Pose); pose != "" {
		parts = append(parts, "Pose: "+pose+".")
	}
	if bg := backgroundPhrase(cfg); bg != "" {
		parts = append(parts, "Background: "+bg+".")
	}
	if extra := strings.TrimSpace(cfg.Prompt); extra != "" {
		parts = append(parts, "Additional direction: "+strings.TrimRight(extra, ".")+".")
	}
	parts = append(parts, "Photorealistic, sharp focus, flattering soft studio lighting, natural proportions, no text or watermarks.")
	if aspect := strings.TrimSpace(cfg.AspectRatio); aspect != "" {
		parts = append(parts, "Compose the frame for a "+aspect+" aspect ratio.")
	}
	return strings.Join(parts, " ")
}

func backgroundPhrase(cfg domain.GenerationConfig) string {
	if cfg.Background == domain.BackgroundCustom {
		return strings.TrimRight(strings.TrimSpace(cfg.CustomBackground), ".")
	}
	return backgroundPhrases[cfg.Background]
}

// VideoInstructionRequest drives the video-prompt variant.
type VideoInstructionRequest struct {
	Subject     string
	CameraStyle string
	FilmStyle   string
	Prompt      string
	AspectRatio string
}

// BuildVideoInstruction renders the instruction asking the model for a
// short video prompt animating an existing avatar image.
func BuildVideoInstruction(req VideoInstructionRequest) string {
	parts := []string{"Write a single cinematic video prompt that animates the person in the attached image."}
	if subject := strings.TrimSpace(req.Subject); subject != "" {
		parts = append(parts, "Subject: "+subject+".")
	}
	if camera := humanizeLabel(req.CameraStyle); camera != "" {
		parts = append(parts, "Camera movement: "+camera+".")
	}
	if film := humanizeLabel(req.FilmStyle); film != "" {
		parts = append(parts, "Film look: "+film+".")
	}
	if extra := strings.TrimSpace(req.Prompt); extra != "" {
		parts = append(parts, "Additional direction: "+strings.TrimRight(extra, ".")+".")
	}
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		parts = append(parts, "Frame for "+aspect+".")
	}
	parts = append(parts, "Keep the identity consistent and the motion subtle. Reply with the prompt only.")
	return strings.Join(parts, " ")
}

// humanizeLabel turns enum labels like "dolly_zoom" into "Dolly Zoom".
func humanizeLabel(label string) string {
	label = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(label))
	if label == "" {
		return ""
	}
	return cases.Title(language.Und).String(strings.Join(strings.Fields(label), " "))
}
