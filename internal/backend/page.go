package backend

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/RichardoC/pawtrack/internal/models"
)

// Shape identifies which of the listing response layouts the upstream used.
type Shape int

const (
	// ShapeBareArray is a plain JSON array of messages.
	ShapeBareArray Shape = iota + 1
	// ShapePagedItems is {"items": [...], "hasNextPage": bool}.
	ShapePagedItems
	// ShapeMessagesWrapper is {"messages": [...]} and is never paginated.
	ShapeMessagesWrapper
)

func (s Shape) String() string {
	switch s {
	case ShapeBareArray:
		return "bare_array"
	case ShapePagedItems:
		return "paged_items"
	case ShapeMessagesWrapper:
		return "messages_wrapper"
	default:
		return "unknown"
	}
}

// Page is one normalized listing response.
type Page struct {
	Shape    Shape
	Messages []models.Message
	// HasNextPage is the upstream flag, nil when the shape does not carry one.
	HasNextPage *bool
}

// HasMore reports whether another page should be requested after this one.
// A short page always ends pagination, whatever the upstream flag says.
func (p Page) HasMore(pageSize int) bool {
	if len(p.Messages) < pageSize {
		return false
	}
	switch p.Shape {
	case ShapeMessagesWrapper:
		return false
	case ShapePagedItems:
		return p.HasNextPage == nil || *p.HasNextPage
	default:
		return true
	}
}

// ParsePage classifies a listing body into exactly one Shape and decodes
// its messages. A null items or messages list is an empty page of that
// shape.
func ParsePage(body []byte) (Page, error) {
	if !gjson.ValidBytes(body) {
		return Page{}, fmt.Errorf("%w: invalid json", ErrMalformedPage)
	}

	root := gjson.ParseBytes(body)
	switch {
	case root.IsArray():
		return Page{Shape: ShapeBareArray, Messages: decodeMessages(root)}, nil

	case root.IsObject():
		if items := root.Get("items"); isList(items) {
			page := Page{Shape: ShapePagedItems, Messages: decodeMessages(items)}
			if flag := root.Get("hasNextPage"); flag.Exists() {
				hasNext := flag.Bool()
				page.HasNextPage = &hasNext
			}
			return page, nil
		}
		if wrapped := root.Get("messages"); isList(wrapped) {
			return Page{Shape: ShapeMessagesWrapper, Messages: decodeMessages(wrapped)}, nil
		}
		return Page{}, fmt.Errorf("%w: object has neither items nor messages", ErrMalformedPage)

	default:
		return Page{}, fmt.Errorf("%w: unexpected %s", ErrMalformedPage, root.Type)
	}
}

func isList(v gjson.Result) bool {
	return v.IsArray() || (v.Exists() && v.Type == gjson.Null)
}

// decodeMessages reads each element field by field. Only the id matters to
// callers; a malformed payload field never fails the page.
func decodeMessages(list gjson.Result) []models.Message {
	msgs := make([]models.Message, 0)
	if !list.IsArray() {
		return msgs
	}
	list.ForEach(func(_, el gjson.Result) bool {
		msgs = append(msgs, models.Message{
			ID:        messageID(el.Get("id")),
			PatientID: el.Get("patientId").String(),
			Role:      models.Role(el.Get("role").String()),
			Content:   el.Get("content").String(),
			CreatedAt: parseTime(el.Get("createdAt").String()),
		})
		return true
	})
	return msgs
}

// messageID accepts string and numeric ids.
func messageID(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number:
		return v.Raw
	default:
		return ""
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTime returns the zero time for values it cannot read. Zone-less
// timestamps are taken as UTC.
func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
