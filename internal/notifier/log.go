// Package notifier contains the expectation listeners: structured logs, prometheus gauges,
// websocket clients and a NATS subject.
package notifier

import (
	"log/slog"

	"github.com/gyaneshwarpardhi/sense/internal/expectation"
)

// Log writes every registration and notification to the default logger.
type Log struct{}

func (Log) NotificationRegistered(info expectation.Info) error {
	slog.Info("notification registered", "notification", info.Name, "description", info.Description)
	return nil
}

func (Log) Notify(n expectation.Notification) error {
	slog.Info("notification received",
		"notification", n.Name,
		"source_timestamp", n.SourceTimestamp,
		"achieved", n.AchievedCounts,
		"description", n.Description)
	return nil
}
