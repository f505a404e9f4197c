package models

// Event names published on the event channel
const (
	EventProcessStatus       = "process-status"
	EventWindowProcessStatus = "window-process-status"
)

// DefaultView is the view label used when a caller does not name one
const DefaultView = "main"
