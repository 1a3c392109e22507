package dispatch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
)

// RequestSpec describes one POST: a URL and its string form parameters.
// A RequestSpec is immutable; accessors return copies.
type RequestSpec struct {
	url    string
	params map[string]string
}

// NewRequestSpec returns a spec for url with a copy of params.
func NewRequestSpec(rawURL string, params map[string]string) RequestSpec {
	return RequestSpec{url: rawURL, params: copyParams(params)}
}

// URL returns the request URL.
func (s RequestSpec) URL() string {
	return s.url
}

// Params returns a copy of the form parameters.
func (s RequestSpec) Params() map[string]string {
	return copyParams(s.params)
}

// Param returns a single parameter.
func (s RequestSpec) Param(key string) (string, bool) {
	v, ok := s.params[key]
	return v, ok
}

// Encode returns the parameters as an application/x-www-form-urlencoded
// body, keys sorted.
func (s RequestSpec) Encode() string {
	values := make(url.Values, len(s.params))
	for k, v := range s.params {
		values.Set(k, v)
	}
	return values.Encode()
}

type specJSON struct {
	URL    string            `json:"url"`
	Params map[string]string `json:"params,omitempty"`
}

// MarshalJSON encodes s as {"url":..., "params":{...}}.
func (s RequestSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(specJSON{URL: s.url, Params: s.params})
}

// UnmarshalJSON decodes a spec written by MarshalJSON.
func (s *RequestSpec) UnmarshalJSON(data []byte) error {
	var v specJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.URL == "" {
		return fmt.Errorf("request spec: url is required")
	}
	*s = NewRequestSpec(v.URL, v.Params)
	return nil
}

// WriteBackup appends spec to w as a single JSON line.
func WriteBackup(w io.Writer, spec RequestSpec) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// ReadBackups reads every spec written by WriteBackup. Blank lines are skipped.
func ReadBackups(r io.Reader) ([]RequestSpec, error) {
	var specs []RequestSpec
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var s RequestSpec
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			return specs, fmt.Errorf("line %d: %w", line, err)
		}
		specs = append(specs, s)
	}
	return specs, scanner.Err()
}

// Builder accumulates parameters for a RequestSpec.
type Builder struct {
	url    string
	params map[string]string
}

// NewBuilder starts a spec for url.
func NewBuilder(rawURL string) *Builder {
	return &Builder{url: rawURL, params: make(map[string]string)}
}

// SetParams replaces all parameters.
func (b *Builder) SetParams(params map[string]string) *Builder {
	b.params = copyParams(params)
	return b
}

// AddParam sets key to the string form of value.
func (b *Builder) AddParam(key string, value interface{}) *Builder {
	b.params[key] = fmt.Sprint(value)
	return b
}

// Build returns the immutable spec.
func (b *Builder) Build() RequestSpec {
	return NewRequestSpec(b.url, b.params)
}

func copyParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
