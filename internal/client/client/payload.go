package client

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/propsync/internal/common"
)

// Shape tags the variant held by a Payload.
type Shape string

const (
	ShapeEmpty     Shape = "empty"
	ShapeSingle    Shape = "single"
	ShapeList      Shape = "list"
	ShapePaginated Shape = "paginated"
)

// Page carries the pagination envelope of a paginated answer.
type Page struct {
	Count    int    `json:"count"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}

// Payload is a response body reduced to one of four shapes. Item is set for
// ShapeSingle, Items for ShapeList and ShapePaginated, Page only for
// ShapePaginated.
type Payload struct {
	Shape Shape             `json:"shape"`
	Item  json.RawMessage   `json:"item,omitempty"`
	Items []json.RawMessage `json:"items,omitempty"`
	Page  *Page             `json:"page,omitempty"`
}

type envelope struct {
	Results  *[]json.RawMessage `json:"results"`
	Count    *int               `json:"count"`
	Next     *string            `json:"next"`
	Previous *string            `json:"previous"`
}

// Normalize classifies body. An object with a "results" array is paginated,
// a top-level array is a list, an empty body or null is empty and anything
// else is a single value.
func Normalize(body []byte) (Payload, error) {
	b := bytes.TrimSpace(body)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return Payload{Shape: ShapeEmpty}, nil
	}
	if !json.Valid(b) {
		return Payload{}, fmt.Errorf("%w: body is not valid JSON", common.ErrMalformedResponse)
	}

	switch b[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return Payload{}, fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
		}
		return Payload{Shape: ShapeList, Items: items}, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(b, &env); err == nil && env.Results != nil {
			p := Payload{Shape: ShapePaginated, Items: *env.Results, Page: &Page{Count: len(*env.Results)}}
			if env.Count != nil {
				p.Page.Count = *env.Count
			}
			if env.Next != nil {
				p.Page.Next = *env.Next
			}
			if env.Previous != nil {
				p.Page.Previous = *env.Previous
			}
			return p, nil
		}
	}
	return Payload{Shape: ShapeSingle, Item: json.RawMessage(b)}, nil
}

// Len returns the number of records the payload holds.
func (p Payload) Len() int {
	switch p.Shape {
	case ShapeSingle:
		return 1
	case ShapeList, ShapePaginated:
		return len(p.Items)
	default:
		return 0
	}
}

// Decode unmarshals the payload into out. For list shapes out must be a
// pointer to a slice; an empty payload leaves out untouched.
func (p Payload) Decode(out any) error {
	var raw []byte
	switch p.Shape {
	case ShapeEmpty:
		return nil
	case ShapeSingle:
		raw = p.Item
	case ShapeList, ShapePaginated:
		items := p.Items
		if items == nil {
			items = []json.RawMessage{}
		}
		b, err := json.Marshal(items)
		if err != nil {
			return err
		}
		raw = b
	default:
		return fmt.Errorf("%w: unknown payload shape %q", common.ErrMalformedResponse, p.Shape)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
	}
	return nil
}
