// Package envelope recovers structured payloads from free-text responses
// that embed a fenced JSON block.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// RawField is the payload field carrying a free-text response.
const RawField = "raw_response"

const (
	openFence  = "```json"
	closeFence = "```"
)

var (
	ErrUnterminatedBlock = errors.New("fenced block is not terminated")
	ErrEmptyBlock        = errors.New("fenced block is empty")
	ErrInvalidJSON       = errors.New("fenced block is not valid JSON")
)

// MalformedEnvelopeError reports a text envelope whose fenced block could
// not be turned into JSON.
type MalformedEnvelopeError struct {
	Err     error
	Excerpt string
}

func (e *MalformedEnvelopeError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("malformed envelope: %v", e.Err)
	}
	return fmt.Sprintf("malformed envelope: %v: %q", e.Err, e.Excerpt)
}

func (e *MalformedEnvelopeError) Unwrap() error {
	return e.Err
}

// Extract returns the first ```json fenced block in text. ok is false when
// the text carries no such block.
func Extract(text string) (block json.RawMessage, ok bool, err error) {
	start := strings.Index(text, openFence)
	if start < 0 {
		return nil, false, nil
	}
	rest := text[start+len(openFence):]

	end := strings.Index(rest, closeFence)
	if end < 0 {
		return nil, true, &MalformedEnvelopeError{Err: ErrUnterminatedBlock, Excerpt: excerpt(rest)}
	}

	body := strings.TrimSpace(rest[:end])
	if body == "" {
		return nil, true, &MalformedEnvelopeError{Err: ErrEmptyBlock}
	}
	if !json.Valid([]byte(body)) {
		return nil, true, &MalformedEnvelopeError{Err: ErrInvalidJSON, Excerpt: excerpt(body)}
	}
	return json.RawMessage(body), true, nil
}

// Unwrap returns the structured payload inside p. A payload whose raw
// response field embeds a fenced JSON block yields that block; any other
// payload is returned unchanged.
func Unwrap(p json.RawMessage) (json.RawMessage, error) {
	raw := gjson.GetBytes(p, RawField)
	if raw.Type != gjson.String {
		return p, nil
	}

	block, ok, err := Extract(raw.String())
	if err != nil {
		return nil, err
	}
	if !ok {
		return p, nil
	}
	return block, nil
}

func excerpt(s string) string {
	const max = 64
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
