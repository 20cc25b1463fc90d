package job

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform response body. Result fields are merged flat next to
// code and message when serialised.
type Envelope struct {
	Code    int
	Message string
	Fields  map[string]any
}

// OK builds a 200 envelope carrying fields.
func OK(fields map[string]any) Envelope {
	return Envelope{Code: http.StatusOK, Fields: fields}
}

// Fail builds an error envelope.
func Fail(code int, message string) Envelope {
	return Envelope{Code: code, Message: message}
}

// Status is the HTTP status the envelope is written with.
func (e Envelope) Status() int {
	if e.Code == 0 {
		return http.StatusInternalServerError
	}
	return e.Code
}

// MarshalJSON flattens the envelope. code, and message when set, win over result
// fields with the same name.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["code"] = e.Status()
	if e.Message != "" {
		out["message"] = e.Message
	}
	return json.Marshal(out)
}
