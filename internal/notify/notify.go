// Package notify delivers remediation and dispatch events to pluggable
// channels. Delivery is fire-and-forget: a channel failure is logged and never
// propagates into remediation or dispatch state.
package notify

import (
	"context"
	"log"
)

// Severity classifies a notification.
type Severity int

const (
	Info Severity = iota
	Success
	Warning
	Error
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Notifier is a single notification channel.
type Notifier interface {
	Notify(ctx context.Context, title, message string, severity Severity) error
}

// Router fans a notification out to every configured channel, swallowing
// per-channel failures. Its own Notify never returns an error.
type Router struct {
	channels []Notifier
}

// NewRouter creates a Router over the given channels.
func NewRouter(channels ...Notifier) *Router {
	return &Router{channels: channels}
}

// Notify delivers to all channels. Failures are logged and dropped.
func (r *Router) Notify(ctx context.Context, title, message string, severity Severity) error {
	for _, ch := range r.channels {
		if err := ch.Notify(ctx, title, message, severity); err != nil {
			log.Printf("[WARN] notification channel failed: %v", err)
		}
	}
	return nil
}

// Noop is a Notifier that discards everything.
type Noop struct{}

func (Noop) Notify(context.Context, string, string, Severity) error { return nil }

// Log is a Notifier that writes notifications to the process log.
type Log struct{}

func (Log) Notify(_ context.Context, title, message string, severity Severity) error {
	log.Printf("[INFO] notify [%s] %s: %s", severity, title, message)
	return nil
}
