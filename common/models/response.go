package models

// BaseResponse is the envelope for successful responses.
type BaseResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse is the envelope for failures. Msg carries the
// user-facing explanation; Error is the HTTP status text.
type ErrorResponse struct {
	Error string `json:"error"`
	Msg   string `json:"message,omitempty"`
}
