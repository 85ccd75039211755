// Package notification delivers trading alerts to external channels
// (Telegram, generic webhooks) and to the log.
package notification

import (
	"context"
	"fmt"
	"log"

	"trade-arena/internal/engine"
	"trade-arena/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	AgentID int64      `json:"agent_id,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts. Always installed so alerts are never silently lost.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] agent %d %s: %s", alert.Level, alert.AgentID, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to several backends. Delivery failures are logged,
// not returned; one broken channel must not stop the others.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			log.Printf("[notify] delivery failed: %v", err)
		}
	}
	return nil
}

// AlertsForCycle converts a finished cycle into the alerts worth sending:
// one warning for a failed cycle, one info per executed entry or close.
// Holds and per-asset rejections stay out of external channels.
func AlertsForCycle(result engine.CycleResult) []Alert {
	if result.Error != "" {
		return []Alert{{
			Level:   AlertWarning,
			Title:   "Trading cycle failed",
			Message: result.Error,
			AgentID: result.AgentID,
		}}
	}
	var alerts []Alert
	for _, ex := range result.Executions {
		if !ex.Accepted || ex.Signal == string(model.SignalHold) {
			continue
		}
		msg := fmt.Sprintf("%s %s qty=%g @ %.2f (%dx)", ex.Signal, ex.Asset, ex.Quantity, ex.Price, ex.Leverage)
		if ex.Signal == string(model.SignalClosePosition) {
			msg = fmt.Sprintf("%s pnl=%.2f", msg, ex.PnL)
		}
		alerts = append(alerts, Alert{
			Level:   AlertInfo,
			Title:   "Trade executed",
			Message: msg,
			AgentID: result.AgentID,
		})
	}
	return alerts
}

// NotifyCycle sends every alert derived from the cycle result.
func NotifyCycle(ctx context.Context, n Notifier, result engine.CycleResult) {
	for _, alert := range AlertsForCycle(result) {
		if err := n.Send(ctx, alert); err != nil {
			log.Printf("[notify] send failed: %v", err)
		}
	}
}
