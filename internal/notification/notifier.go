// Package notification delivers alerts for trading events (emitted
// signals, dispatch failures) to external channels.
package notification

import (
	"context"
	"fmt"
	"log"

	"tradebotv1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// SignalAlert builds an INFO alert for an emitted signal.
func SignalAlert(sig model.Signal) Alert {
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s signal: %s", sig.Direction, sig.Pair),
		Message: fmt.Sprintf("strategy=%s price=%.6f confidence=%.1f reason=%s",
			sig.StrategyID, sig.Price, sig.Confidence, sig.Reason),
	}
}

// DispatchFailureAlert builds a CRITICAL alert for a job that exhausted its
// retry budget.
func DispatchFailureAlert(signalID, lastError string) Alert {
	return Alert{
		Level:   AlertCritical,
		Title:   "signal dispatch failed",
		Message: fmt.Sprintf("signal=%s last_error=%s", signalID, lastError),
	}
}
