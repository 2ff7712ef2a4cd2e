package common

import (
	"github.com/google/uuid"
)

// NewMessageID generates a unique queue message ID with the "msg_" prefix
// Format: msg_<uuid>
func NewMessageID() string {
	return "msg_" + uuid.New().String()
}

// NewWorkerID generates a unique worker identity with the "worker_" prefix
func NewWorkerID() string {
	return "worker_" + uuid.New().String()[:8]
}
