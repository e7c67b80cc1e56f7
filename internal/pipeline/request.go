package pipeline

import "net/http"

// Request is the transport-agnostic invocation input. Any adaptor that can
// supply case-insensitive header lookup, cookies, and raw body/query/params
// can drive the pipeline; nothing here depends on a routing library.
type Request struct {
	// Headers uses net/http's canonical-key map, giving case-insensitive
	// lookup via Get.
	Headers http.Header

	// Cookies parsed from the request, if any.
	Cookies []*http.Cookie

	// Body is the raw request body. Decoded and validated only when the
	// construct declares a body schema.
	Body []byte

	// Query holds the flattened query string.
	Query map[string]string

	// Params holds the route/path parameters.
	Params map[string]string
}

// Header returns a header value, case-insensitively.
func (r *Request) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// Response is what the pipeline hands back to the transport adaptor: a
// status, headers and cookie mutations to apply, and a body to encode.
type Response struct {
	Status        int
	Headers       map[string]string
	SetCookies    []*http.Cookie
	DeleteCookies []string
	Body          any
}
