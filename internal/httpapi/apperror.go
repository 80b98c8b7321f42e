package httpapi

import "net/http"

// AppError carries the status code and the message shown to the client.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func badRequest(message string) *AppError {
	return newAppError(http.StatusBadRequest, message, nil)
}

func notFound(message string) *AppError {
	return newAppError(http.StatusNotFound, message, nil)
}

func conflict(message string, err error) *AppError {
	return newAppError(http.StatusConflict, message, err)
}
