package models

// ProcessResult is the wire response of the "process one item" operation
type ProcessResult struct {
	Success bool        `json:"success"`
	Data    ProcessData `json:"data"`
}

type ProcessData struct {
	Message string `json:"message,omitempty"`
}

// Succeeded builds a successful result with message
func Succeeded(message string) ProcessResult {
	return ProcessResult{Success: true, Data: ProcessData{Message: message}}
}

// Failed builds a failed result with message
func Failed(message string) ProcessResult {
	return ProcessResult{Success: false, Data: ProcessData{Message: message}}
}
