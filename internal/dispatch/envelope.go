package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/netask/pkg/protocol"
)

var errNotObject = errors.New("body is not a JSON object")

// Envelope is the JSON wrapper that carries application-level status
// independently of the HTTP status.
type Envelope struct {
	Code    int
	Message string
	Result  json.RawMessage
	// Fields holds every top-level member, code and result included.
	Fields map[string]json.RawMessage

	hasCode bool
}

// HasCode reports whether the body carried a code member.
func (e *Envelope) HasCode() bool {
	return e.hasCode
}

// HasResult reports whether the body carried a result member.
func (e *Envelope) HasResult() bool {
	return e.Result != nil
}

// Field decodes one top-level member into v.
func (e *Envelope) Field(name string, v interface{}) error {
	raw, ok := e.Fields[name]
	if !ok {
		return fmt.Errorf("envelope has no field %q", name)
	}
	return json.Unmarshal(raw, v)
}

// ResultString returns the result member as text: strings unquoted, any
// other JSON value verbatim.
func (e *Envelope) ResultString() string {
	var s string
	if err := json.Unmarshal(e.Result, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(e.Result))
}

// ParseEnvelope parses body as a JSON object. A code member must be an
// integer or a string holding one.
func ParseEnvelope(body []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("parsing envelope: %w", err)
	}

	env := &Envelope{Fields: fields}
	if raw, ok := fields["code"]; ok {
		code, err := parseCode(raw)
		if err != nil {
			return nil, err
		}
		env.Code = code
		env.hasCode = true
	}
	if raw, ok := fields["message"]; ok {
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil {
			msg = string(raw)
		}
		env.Message = msg
	}
	if raw, ok := fields["result"]; ok {
		env.Result = raw
	}

	return env, nil
}

func parseCode(raw json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if code, err := strconv.Atoi(n.String()); err == nil {
			return code, nil
		}
		if f, err := n.Float64(); err == nil && f == float64(int(f)) {
			return int(f), nil
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if code, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return code, nil
		}
	}
	return 0, fmt.Errorf("envelope code %s is not an integer", raw)
}

// Result is the success branch of a dispatch.
type Result struct {
	StatusCode int
	// Payload is the result member of the envelope, or the whole body when
	// the body has no result member or is not a JSON object.
	Payload string
}

// interpret classifies a queue response. Sync and async dispatch both end
// here, so they agree on every outcome.
func interpret(resp *protocol.Response) (Result, *Failure) {
	if resp.Error != nil {
		status := resp.StatusCode
		if status <= 0 {
			status = -1
		}
		return Result{}, &Failure{Kind: KindTransport, StatusCode: status, Body: string(resp.Body), Err: resp.Error}
	}

	body := resp.Body
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f := &Failure{Kind: KindTransport, StatusCode: resp.StatusCode, Body: string(body)}
		statusErr := fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
		env, err := ParseEnvelope(body)
		if err != nil {
			f.Err = errors.Join(statusErr, err)
		} else {
			f.Envelope = env
			f.Err = statusErr
		}
		return Result{}, f
	}

	env, err := ParseEnvelope(body)
	if errors.Is(err, errNotObject) {
		return Result{StatusCode: resp.StatusCode, Payload: string(body)}, nil
	}
	if err != nil {
		return Result{}, &Failure{Kind: KindParse, StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}

	if env.HasCode() && env.Code != 0 {
		return Result{}, &Failure{Kind: KindApplication, StatusCode: resp.StatusCode, Envelope: env, Body: string(body)}
	}

	if env.HasResult() {
		return Result{StatusCode: resp.StatusCode, Payload: env.ResultString()}, nil
	}
	return Result{StatusCode: resp.StatusCode, Payload: string(body)}, nil
}
