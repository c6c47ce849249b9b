package request

import (
	"encoding/json"
	"fmt"
)

// Marshal encodes a request as a single JSON object carrying the variant
// tag alongside the variant's fields, e.g.
//
//	{"type":"search","query":"...","max_tweets":-1,"batch_size":20,...}
func Marshal(r Request) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"], err = json.Marshal(r.Kind())
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// Unmarshal decodes a request produced by Marshal, dispatching on the
// variant tag and re-validating the decoded fields.
func Unmarshal(data []byte) (Request, error) {
	var probe struct {
		Kind Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	var r Request
	switch probe.Kind {
	case KindSearch:
		r = &Search{}
	case KindReplies:
		r = &Replies{}
	case KindThread:
		r = &Thread{}
	case KindTimeline:
		r = &Timeline{}
	default:
		return nil, fmt.Errorf("decoding request: unknown type %q", probe.Kind)
	}

	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decoding %s request: %w", probe.Kind, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("decoding %s request: %w", probe.Kind, err)
	}
	return r, nil
}
