package hushlib

import "log"

// LogSink is a NotificationSink that writes notifications to a logger.
type LogSink struct {
	l *log.Logger
}

// NewLogSink creates a logging notification sink.
func NewLogSink(l *log.Logger) *LogSink {
	return &LogSink{l: l}
}

func (s *LogSink) NotifyActivated(profileName string) {
	s.l.Printf("profile activated: %s", profileName)
}

func (s *LogSink) NotifyDeactivated(profileName string) {
	s.l.Printf("profile deactivated: %s", profileName)
}

func (s *LogSink) NotifyPermissionRequired(kind string) {
	s.l.Printf("permission required: %s", kind)
}

// MultiSink fans a notification out to several sinks.
type MultiSink []NotificationSink

func (m MultiSink) NotifyActivated(profileName string) {
	for _, s := range m {
		s.NotifyActivated(profileName)
	}
}

func (m MultiSink) NotifyDeactivated(profileName string) {
	for _, s := range m {
		s.NotifyDeactivated(profileName)
	}
}

func (m MultiSink) NotifyPermissionRequired(kind string) {
	for _, s := range m {
		s.NotifyPermissionRequired(kind)
	}
}
