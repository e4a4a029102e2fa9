package fetch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Op is the kind of upstream operation a request performs.
type Op string

const (
	OpSearch Op = "search"
	OpLookup Op = "lookup"
	OpDetail Op = "detail"
	OpQuota  Op = "quota"
)

// Request identifies one logical upstream call. It is immutable once built:
// accessors return copies.
type Request struct {
	op       Op
	path     string
	params   url.Values
	appendix []string
}

// NewRequest builds a request for path with a copy of params.
func NewRequest(op Op, path string, params url.Values) Request {
	return Request{op: op, path: path, params: cloneValues(params)}
}

// Search builds a search-by-query request.
func Search(path string, params url.Values) Request {
	return NewRequest(OpSearch, path, params)
}

// Lookup builds a lookup-by-id request.
func Lookup(path string, params url.Values) Request {
	return NewRequest(OpLookup, path, params)
}

// Detail builds a detail request that asks the provider to append the named
// sub-resources to the same response.
func Detail(path string, params url.Values, appendix ...string) Request {
	r := NewRequest(OpDetail, path, params)
	for _, a := range appendix {
		if a = strings.TrimSpace(a); a != "" {
			r.appendix = append(r.appendix, a)
		}
	}
	return r
}

func (r Request) Op() Op { return r.op }

func (r Request) Path() string { return r.path }

// Appendix returns the appended sub-resource names.
func (r Request) Appendix() []string { return append([]string(nil), r.appendix...) }

// Query returns the full query parameters, including append_to_response.
func (r Request) Query() url.Values {
	q := cloneValues(r.params)
	if len(r.appendix) > 0 {
		q.Set("append_to_response", strings.Join(r.appendix, ","))
	}
	return q
}

func (r Request) String() string {
	return fmt.Sprintf("%s %s", r.op, r.path)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// Result is a successful upstream response.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
