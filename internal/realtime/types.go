package realtime

import (
	"github.com/wonny/eodsignals/pkg/logger"
)

// MessageType tags every frame written to /ws/runs
type MessageType string

const (
	// MessageSnapshot is sent once on connect with the latest event of every job
	MessageSnapshot MessageType = "snapshot"
	// MessageRunEvent carries one live run-log entry
	MessageRunEvent MessageType = "run_event"
)

// Message is one websocket frame
// ⭐ SSOT: 실시간 실행 로그 프레임 구조
type Message struct {
	Type   MessageType       `json:"type"`
	Event  *logger.RunEvent  `json:"event,omitempty"`
	Events []logger.RunEvent `json:"events,omitempty"`
}
