package construct

import "net/http"

// Meta carries response metadata a handler may attach to its payload.
// When present it is merged over the construct's defaults: an explicit
// status wins, headers and cookies are unioned.
type Meta struct {
	// Status overrides the construct's default success status when non-zero.
	Status int

	// Headers are added to the response.
	Headers map[string]string

	// SetCookies are cookies to set on the response.
	SetCookies []*http.Cookie

	// DeleteCookies are cookie names to expire on the response.
	DeleteCookies []string
}

// Response is the tagged "payload plus metadata" handler return variant, as
// opposed to returning a plain payload. The runtime distinguishes the two
// by type, never by structural inspection of the payload.
type Response struct {
	Payload any
	Meta    Meta
}

// WithMeta wraps a payload with response metadata.
func WithMeta(payload any, meta Meta) *Response {
	return &Response{Payload: payload, Meta: meta}
}

// ResponsePayload implements audit.MetaCarrier: validation and audit rules
// observe the inner payload, not the wrapper.
func (r *Response) ResponsePayload() any {
	return r.Payload
}
