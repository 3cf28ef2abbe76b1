package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"budgetwise/internal/core"
)

// AllocationAppliedMessage announces a stored allocation run. It carries
// only identifiers; consumers load the run itself from the store.
type AllocationAppliedMessage struct {
	RunID     string    `json:"run_id"`
	UserID    string    `json:"user_id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Timestamp time.Time `json:"timestamp"`
}

func NewAllocationAppliedMessage(runID, userID string, w core.MonthWindow) *AllocationAppliedMessage {
	return &AllocationAppliedMessage{
		RunID:     runID,
		UserID:    userID,
		Year:      w.Year,
		Month:     w.Month,
		Timestamp: time.Now(),
	}
}

// Window returns the month the run applied to.
func (m *AllocationAppliedMessage) Window() core.MonthWindow {
	return core.MonthWindow{Year: m.Year, Month: m.Month}
}

func (m *AllocationAppliedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AllocationAppliedMessageFromJSON decodes a message and rejects one without a run id.
func AllocationAppliedMessageFromJSON(data []byte) (*AllocationAppliedMessage, error) {
	var msg AllocationAppliedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.RunID == "" {
		return nil, errors.New("message has no run id")
	}
	return &msg, nil
}
