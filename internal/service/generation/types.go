package generation

import (
	"strings"

	"github.com/ChaseRain/slidegen/pkg/errors"
	"github.com/ChaseRain/slidegen/pkg/util"
)

type ArtifactType string

const (
	TypePPTX ArtifactType = "pptx"
	TypePDF  ArtifactType = "pdf"
)

const (
	MaxTextLength     = 2000
	MinSlides         = 1
	MaxSlides         = 15
	DefaultSlideCount = 5
)

// Request is what the entry form submits. It is built fresh per submission.
type Request struct {
	Text       string       `json:"text"`
	SlideCount int          `json:"slideCount"`
	Type       ArtifactType `json:"type"`
}

// Validate is the entry view's precondition. The Client itself forwards
// whatever it is given.
func (r Request) Validate() error {
	if util.IsBlank(r.Text) {
		return errors.New(errors.ErrCodeValidation, "Please enter some text to generate a presentation")
	}
	if util.RuneLen(r.Text) > MaxTextLength {
		return errors.New(errors.ErrCodeValidation, "Text is too long (max 2000 characters)")
	}
	return nil
}

// ClampSlideCount mirrors the slider input: anything outside [1,15] snaps to the nearest bound.
func ClampSlideCount(n int) int {
	if n < MinSlides {
		return MinSlides
	}
	if n > MaxSlides {
		return MaxSlides
	}
	return n
}

// ParseArtifactType falls back to pptx for anything unrecognised.
func ParseArtifactType(s string) ArtifactType {
	if ArtifactType(strings.ToLower(strings.TrimSpace(s))) == TypePDF {
		return TypePDF
	}
	return TypePPTX
}

type Slide struct {
	Title    string   `json:"title"`
	Points   []string `json:"points"`
	ImageURL string   `json:"image_url,omitempty"`
}

type Structure struct {
	Topic  string  `json:"topic,omitempty"`
	Slides []Slide `json:"slides"`
}

// Artifact is the success variant of a Result.
type Artifact struct {
	Filename    string     `json:"filename"`
	ContentType string     `json:"contentType"`
	FileBase64  string     `json:"fileBase64"`
	Structure   *Structure `json:"structure,omitempty"`
}

// Failure is the error variant of a Result. Kind is one of the pkg/errors codes.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result holds exactly one of Artifact or Failure.
type Result struct {
	Artifact *Artifact `json:"artifact,omitempty"`
	Failure  *Failure  `json:"failure,omitempty"`
}

func (r Result) OK() bool {
	return r.Artifact != nil
}

// Err converts a failed Result into an AppError; it is nil on success.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return errors.New(r.Failure.Kind, r.Failure.Message)
}

func success(a *Artifact) Result {
	return Result{Artifact: a}
}

func failure(kind, message string) Result {
	return Result{Failure: &Failure{Kind: kind, Message: message}}
}
