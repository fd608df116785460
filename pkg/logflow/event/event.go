// Package event defines the unit of data moved through logflow: an opaque
// body plus string headers.
//
// Events are owned by whichever component currently holds the pointer.
// Interceptors may mutate headers and body in place while an event is being
// processed; once an event has been put on a channel it must not be
// modified by the producer.
package event

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Well-known header keys.
const (
	// HeaderID carries a unique event identifier when WithEventID is used.
	HeaderID = "id"
)

// maxStringBody bounds the body excerpt rendered by String.
const maxStringBody = 16

// Event is a body with headers. Keys are unique; values may be replaced
// by interceptors.
type Event struct {
	Headers map[string]string
	Body    []byte
}

// Option configures event creation.
type Option func(*Event)

// WithHeader sets a single header.
func WithHeader(key, value string) Option {
	return func(e *Event) {
		e.Headers[key] = value
	}
}

// WithHeaders copies all entries of headers onto the event.
func WithHeaders(headers map[string]string) Option {
	return func(e *Event) {
		maps.Copy(e.Headers, headers)
	}
}

// WithEventID sets the "id" header to a random UUID.
func WithEventID() Option {
	return func(e *Event) {
		e.Headers[HeaderID] = uuid.NewString()
	}
}

// New creates an event with the given body.
func New(body []byte, opts ...Option) *Event {
	e := &Event{
		Headers: make(map[string]string),
		Body:    body,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewWithString creates an event whose body is the UTF-8 bytes of body.
func NewWithString(body string, opts ...Option) *Event {
	return New([]byte(body), opts...)
}

// Header returns the value of key and whether it is present.
func (e *Event) Header(key string) (string, bool) {
	if e.Headers == nil {
		return "", false
	}
	v, ok := e.Headers[key]
	return v, ok
}

// SetHeader sets key to value, allocating the header map if needed.
func (e *Event) SetHeader(key, value string) {
	if e.Headers == nil {
		e.Headers = make(map[string]string)
	}
	e.Headers[key] = value
}

// Size returns the body size in bytes.
func (e *Event) Size() int {
	return len(e.Body)
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	headers := make(map[string]string, len(e.Headers))
	maps.Copy(headers, e.Headers)
	return &Event{Headers: headers, Body: body}
}

// String renders headers in key order and a short body excerpt.
func (e *Event) String() string {
	keys := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("[Event headers = {")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(e.Headers[k])
	}
	body := e.Body
	truncated := ""
	if len(body) > maxStringBody {
		body = body[:maxStringBody]
		truncated = "..."
	}
	fmt.Fprintf(&b, "}, body.length = %d, body = %q%s]", len(e.Body), body, truncated)
	return b.String()
}
