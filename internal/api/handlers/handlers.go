// Package handlers implements the HTTP handlers of the local ScanMaster API.
package handlers

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
