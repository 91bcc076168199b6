package delivery

import (
	"encoding/base64"
	"strings"
	"sync"

	"github.com/ChaseRain/slidegen/internal/service/generation"
	"github.com/ChaseRain/slidegen/pkg/errors"
	"github.com/ChaseRain/slidegen/pkg/util"
)

const (
	ContentTypePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	ContentTypePDF  = "application/pdf"
)

// Downloader hands an artifact to the user. It is fire-and-forget: no
// return value, and a rejected save is not reported back.
type Downloader interface {
	Download(fileBase64, filename, contentType string)
}

// Link is a transient download anchor for the browser to activate once.
type Link struct {
	Href     string
	Filename string
}

// DataURI builds data:<contentType>;base64,<payload>. Equal inputs give equal output.
func DataURI(contentType, fileBase64 string) string {
	return "data:" + contentType + ";base64," + fileBase64
}

func NewLink(fileBase64, filename, contentType string) Link {
	return Link{
		Href:     DataURI(contentType, fileBase64),
		Filename: filename,
	}
}

// Decode returns the artifact bytes. Padded and unpadded payloads are both accepted.
func Decode(fileBase64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(fileBase64)
	if err == nil {
		return data, nil
	}
	data, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(fileBase64, "="))
	if rawErr != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to decode base64 artifact")
	}
	return data, nil
}

// Normalize fills in a filename and content type when the service left them empty.
func Normalize(a *generation.Artifact, requested generation.ArtifactType) {
	if a.ContentType == "" {
		a.ContentType = contentTypeFor(requested, a.Filename)
	}
	if a.Filename == "" {
		a.Filename = "presentation-" + util.RandomString(6) + extensionFor(a.ContentType)
	}
}

func contentTypeFor(t generation.ArtifactType, filename string) string {
	if t == generation.TypePDF || strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return ContentTypePDF
	}
	return ContentTypePPTX
}

func extensionFor(contentType string) string {
	switch contentType {
	case ContentTypePDF:
		return ".pdf"
	case ContentTypePPTX:
		return ".pptx"
	default:
		return ".bin"
	}
}

// LinkQueue collects links for one browser session until the next page
// render drains them. Two identical Downloads queue two identical links.
type LinkQueue struct {
	mu    sync.Mutex
	links []Link
}

func (q *LinkQueue) Download(fileBase64, filename, contentType string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.links = append(q.links, NewLink(fileBase64, filename, contentType))
}

// Drain returns the pending links and empties the queue.
func (q *LinkQueue) Drain() []Link {
	q.mu.Lock()
	defer q.mu.Unlock()
	links := q.links
	q.links = nil
	return links
}

// Fanout forwards one Download to every target.
type Fanout []Downloader

func (f Fanout) Download(fileBase64, filename, contentType string) {
	for _, d := range f {
		if d != nil {
			d.Download(fileBase64, filename, contentType)
		}
	}
}
