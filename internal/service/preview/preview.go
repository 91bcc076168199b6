package preview

import (
	"github.com/ChaseRain/slidegen/internal/service/generation"
)

const (
	KeyLeft  = "ArrowLeft"
	KeyRight = "ArrowRight"
)

// Cursor is an index into a slide sequence, clamped to [0, length-1].
// There is no wraparound.
type Cursor struct {
	index  int
	length int
}

func NewCursor(length int) *Cursor {
	if length < 0 {
		length = 0
	}
	return &Cursor{length: length}
}

func (c *Cursor) Index() int {
	return c.index
}

func (c *Cursor) Len() int {
	return c.length
}

func (c *Cursor) Seek(i int) int {
	c.index = c.clamp(i)
	return c.index
}

func (c *Cursor) Next() int {
	return c.Seek(c.index + 1)
}

func (c *Cursor) Prev() int {
	return c.Seek(c.index - 1)
}

// Key applies a directional key. Unknown keys leave the cursor alone.
func (c *Cursor) Key(key string) int {
	switch key {
	case KeyLeft:
		return c.Prev()
	case KeyRight:
		return c.Next()
	}
	return c.index
}

func (c *Cursor) HasPrev() bool {
	return c.index > 0
}

func (c *Cursor) HasNext() bool {
	return c.index < c.length-1
}

func (c *Cursor) clamp(i int) int {
	last := c.length - 1
	if i > last {
		i = last
	}
	if i < 0 {
		i = 0
	}
	return i
}

// Page is what the preview template renders for one slide.
type Page struct {
	Topic   string
	Slide   generation.Slide
	Index   int
	Number  int
	Total   int
	HasPrev bool
	HasNext bool
	Prev    int
	Next    int
	Empty   bool
}

// Build positions a cursor at index, applies key, and returns the page.
// A nil or empty structure yields an Empty page.
func Build(structure *generation.Structure, index int, key string) Page {
	var slides []generation.Slide
	var topic string
	if structure != nil {
		slides = structure.Slides
		topic = structure.Topic
	}

	c := NewCursor(len(slides))
	c.Seek(index)
	c.Key(key)

	page := Page{
		Topic:   topic,
		Index:   c.Index(),
		Number:  c.Index() + 1,
		Total:   c.Len(),
		HasPrev: c.HasPrev(),
		HasNext: c.HasNext(),
		Prev:    c.clamp(c.Index() - 1),
		Next:    c.clamp(c.Index() + 1),
		Empty:   len(slides) == 0,
	}
	if !page.Empty {
		page.Slide = slides[c.Index()]
	}
	return page
}
