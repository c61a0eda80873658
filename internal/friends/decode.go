package friends

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusFollowing
	StatusNotFollowing
)

func (s Status) String() string {
	switch s {
	case StatusFollowing:
		return "following"
	case StatusNotFollowing:
		return "not following"
	default:
		return "unknown"
	}
}

func statusOf(following bool) Status {
	if following {
		return StatusFollowing
	}
	return StatusNotFollowing
}

// Decoder identifies which step of the decoding chain produced a status.
type Decoder int

const (
	DecoderNone Decoder = iota
	DecoderStructuredKeyMatch
	DecoderStructuredAnyBoolean
	DecoderTextLiteral
	DecoderTextSubstring
	DecoderStatusCodeOverride
)

func (d Decoder) String() string {
	switch d {
	case DecoderStructuredKeyMatch:
		return "structured-key-match"
	case DecoderStructuredAnyBoolean:
		return "structured-any-boolean"
	case DecoderTextLiteral:
		return "text-literal"
	case DecoderTextSubstring:
		return "text-substring"
	case DecoderStatusCodeOverride:
		return "status-code-override"
	default:
		return "none"
	}
}

// keys that mean "is following", in priority order
var followingKeys = []string{"isFollowing", "is_following", "following", "isFollowed", "followed"}

var substringFragments = []struct {
	fragment string
	status   Status
}{
	{fragment: `"isfollowing":true`, status: StatusFollowing},
	{fragment: `"is_following":true`, status: StatusFollowing},
	{fragment: `"isfollowing":false`, status: StatusNotFollowing},
	{fragment: `"is_following":false`, status: StatusNotFollowing},
}

// statuses for which asking about the relationship is meaningless
var notApplicableStatuses = map[int]bool{
	http.StatusBadRequest:       true,
	http.StatusNotFound:         true,
	http.StatusMethodNotAllowed: true,
}

type jsonField struct {
	key   string
	value json.RawMessage
}

// probeResponse is what every decoder looks at. The body is parsed as a JSON
// object once, keeping field order.
type probeResponse struct {
	code       int
	text       string
	fields     []jsonField
	structured bool
}

func newProbeResponse(code int, body []byte) probeResponse {
	fields, err := objectFields(body)
	return probeResponse{
		code:       code,
		text:       string(body),
		fields:     fields,
		structured: err == nil,
	}
}

var errNotObject = errors.New("body is not a json object")

func objectFields(body []byte) ([]jsonField, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errNotObject
	}

	var fields []jsonField
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errNotObject
		}
		var value json.RawMessage
		err = dec.Decode(&value)
		if err != nil {
			return nil, err
		}
		fields = append(fields, jsonField{key: key, value: value})
	}

	// closing brace
	_, err = dec.Token()
	if err != nil {
		return nil, err
	}
	_, err = dec.Token()
	if err != io.EOF {
		return nil, errNotObject
	}

	return fields, nil
}

func boolValue(raw json.RawMessage) (bool, bool) {
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// decodeFunc returns a status and whether it has an opinion at all.
type decodeFunc func(r probeResponse) (Status, bool)

func decodeKeyMatch(r probeResponse) (Status, bool) {
	if !r.structured {
		return StatusUnknown, false
	}
	for _, key := range followingKeys {
		// later duplicates win, same as decoding into a map
		for i := len(r.fields) - 1; i >= 0; i-- {
			if r.fields[i].key != key {
				continue
			}
			if following, ok := boolValue(r.fields[i].value); ok {
				return statusOf(following), true
			}
			break
		}
	}
	return StatusUnknown, false
}

func decodeAnyBoolean(r probeResponse) (Status, bool) {
	if !r.structured {
		return StatusUnknown, false
	}
	for _, field := range r.fields {
		if following, ok := boolValue(field.value); ok {
			return statusOf(following), true
		}
	}
	return StatusUnknown, false
}

func decodeTextLiteral(r probeResponse) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(r.text)) {
	case "true":
		return StatusFollowing, true
	case "false":
		return StatusNotFollowing, true
	}
	return StatusUnknown, false
}

func decodeTextSubstring(r probeResponse) (Status, bool) {
	text := strings.ToLower(r.text)
	for _, f := range substringFragments {
		if strings.Contains(text, f.fragment) {
			return f.status, true
		}
	}
	return StatusUnknown, false
}

func decodeStatusCode(r probeResponse) (Status, bool) {
	if notApplicableStatuses[r.code] {
		return StatusUnknown, true
	}
	return StatusUnknown, false
}

var decoderChain = []struct {
	kind   Decoder
	decode decodeFunc
}{
	{kind: DecoderStructuredKeyMatch, decode: decodeKeyMatch},
	{kind: DecoderStructuredAnyBoolean, decode: decodeAnyBoolean},
	{kind: DecoderTextLiteral, decode: decodeTextLiteral},
	{kind: DecoderTextSubstring, decode: decodeTextSubstring},
	{kind: DecoderStatusCodeOverride, decode: decodeStatusCode},
}

// decodeStatus runs the chain until a decoder has an opinion. An exhausted chain
// is StatusUnknown with DecoderNone.
func decodeStatus(code int, body []byte) (Status, Decoder) {
	r := newProbeResponse(code, body)
	for _, d := range decoderChain {
		status, ok := d.decode(r)
		if ok {
			return status, d.kind
		}
	}
	return StatusUnknown, DecoderNone
}
