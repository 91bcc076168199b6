package api

import (
	"html/template"

	"github.com/ChaseRain/slidegen/internal/service/generation"
)

// GenerateRequest is bound from the entry form or from a JSON body.
type GenerateRequest struct {
	Text       string `form:"text" json:"text"`
	SlideCount *int   `form:"slideCount" json:"slideCount"`
	Type       string `form:"type" json:"type"`
}

func (r GenerateRequest) toGeneration() generation.Request {
	count := generation.DefaultSlideCount
	if r.SlideCount != nil {
		count = generation.ClampSlideCount(*r.SlideCount)
	}
	return generation.Request{
		Text:       r.Text,
		SlideCount: count,
		Type:       generation.ParseArtifactType(r.Type),
	}
}

// GenerateResponse uses the same flat shape as the upstream service.
type GenerateResponse struct {
	Status      string                `json:"status"`
	Filename    string                `json:"filename,omitempty"`
	ContentType string                `json:"contentType,omitempty"`
	FileBase64  string                `json:"fileBase64,omitempty"`
	Structure   *generation.Structure `json:"structure,omitempty"`
	Code        string                `json:"code,omitempty"`
	Message     string                `json:"message,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type UpstreamHealthResponse struct {
	Status   string         `json:"status"`
	Upstream map[string]any `json:"upstream,omitempty"`
	Message  string         `json:"message,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// downloadLink is a delivery.Link made safe for an href attribute.
// data: URLs are otherwise rewritten by html/template.
type downloadLink struct {
	Href     template.URL
	Filename string
}

type bannerView struct {
	Kind    string
	Message string
	Millis  int64
}

type indexPage struct {
	Banner     *bannerView
	Downloads  []downloadLink
	Submitting bool
	MaxText    int
	MinSlides  int
	MaxSlides  int
	Slides     int
	HasResult  bool
}

type previewPage struct {
	Filename  string
	IsPDF     bool
	Slide     generation.Slide
	Topic     string
	Index     int
	Number    int
	Total     int
	HasPrev   bool
	HasNext   bool
	Prev      int
	Next      int
	Empty     bool
	Downloads []downloadLink
}
