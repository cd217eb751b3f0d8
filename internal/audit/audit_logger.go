package audit

import (
	"encoding/json"
	"log"
	"time"
)

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference"`
	AccountID int64     `json:"account_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Details   any       `json:"details"`
}

// Logger emits one JSON line per money or credential movement.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogMovement(entryType, reference string, accountID, amount, newBalance int64) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: entryType,
		Reference: reference,
		AccountID: accountID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   map[string]int64{"balance": newBalance},
	}
	a.log(event)
}

func (a *Logger) LogPurchase(reference string, accountID int64, tariffID string, pricePaid int64, degraded bool) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "PURCHASE",
		Reference: reference,
		AccountID: accountID,
		Amount:    pricePaid,
		Status:    "SUCCESS",
		Details: map[string]any{
			"tariff_id": tariffID,
			"degraded":  degraded,
		},
	}
	a.log(event)
}

func (a *Logger) LogError(reference string, accountID int64, err error) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "ERROR",
		Reference: reference,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *Logger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
