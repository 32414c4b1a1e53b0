package models

// ErrorResponse is the body of every failed HTTP request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string { return e.Message }
