package legal

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrInvalidDecision is returned by DecodeDecision for payloads without a
// usable decision value.
var ErrInvalidDecision = errors.New("invalid review decision")

// ErrParseFailed is returned when a model reply holds no JSON object.
var ErrParseFailed = errors.New("failed to parse model response")

// Decision is the typed form of a reviewer's payload.
type Decision struct {
	Decision   string `mapstructure:"decision" json:"decision"`
	HasChanges bool   `mapstructure:"has_changes" json:"has_changes"`
	Comments   string `mapstructure:"comments" json:"comments,omitempty"`
	Reviewer   string `mapstructure:"reviewer" json:"reviewer,omitempty"`

	// Extra carries any other fields the reviewer supplied.
	Extra map[string]any `mapstructure:",remain" json:"-"`
}

// DecodeDecision converts a loosely typed payload (form values, JSON bodies,
// CLI flags) into a Decision. has_changes accepts booleans as well as
// "true"/"false" and 1/0.
//
// The decision value itself is not restricted: values the review router does
// not recognize send the work back to review.
func DecodeDecision(raw map[string]any) (Decision, error) {
	d, err := decodeInto[Decision](raw)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %w", ErrInvalidDecision, err)
	}
	d.Decision = strings.ToLower(strings.TrimSpace(d.Decision))
	if d.Decision == "" {
		return Decision{}, fmt.Errorf("%w: decision is required", ErrInvalidDecision)
	}
	return d, nil
}

// Map returns the payload to hand to Resume. has_changes is always present
// so a flag from an earlier round cannot leak into this one.
func (d Decision) Map() map[string]any {
	out := make(map[string]any, len(d.Extra)+4)
	for k, v := range d.Extra {
		out[k] = v
	}
	out[KeyDecision] = d.Decision
	out[KeyHasChanges] = d.HasChanges
	if d.Comments != "" {
		out[KeyComments] = d.Comments
	}
	if d.Reviewer != "" {
		out[KeyReviewer] = d.Reviewer
	}
	return out
}

// Classification is what intake derives from a raw document.
type Classification struct {
	DocumentType string `mapstructure:"document_type"`
	RiskLevel    string `mapstructure:"risk_level"`
	Summary      string `mapstructure:"summary"`
}

// Analysis is what the analyze step extracts from a contract.
type Analysis struct {
	Summary   string   `mapstructure:"summary"`
	RiskLevel string   `mapstructure:"risk_level"`
	Issues    []string `mapstructure:"issues"`
}

func decodeInto[T any](raw map[string]any) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(raw); err != nil {
		return out, err
	}
	return out, nil
}

var jsonBlock = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// parseReply extracts a JSON object from a model reply, accepting either bare
// JSON or JSON inside a markdown code fence, and decodes it into T.
func parseReply[T any](content string) (T, error) {
	var zero T
	content = strings.TrimSpace(content)

	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		m := jsonBlock.FindStringSubmatch(content)
		if len(m) < 2 {
			return zero, fmt.Errorf("%w: %q", ErrParseFailed, truncate(content, 120))
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &raw); err != nil {
			return zero, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
	}
	return decodeInto[T](raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
