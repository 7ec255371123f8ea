// Package logging provides per-bot structured logging: every entry is
// written through zerolog and fanned out to any live subscriber
// channels, the same shape the teacher's internal/bot/logger.go uses
// for its SQLite-backed, WebSocket-broadcast logger, adapted here to
// zerolog's structured-event model instead of a bespoke one.
package logging

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one rendered log line, also broadcast to subscribers (the
// control surface's live-tail endpoint reads these).
type Entry struct {
	Time    time.Time
	Bot     string
	Level   string
	Tag     string
	Message string
}

// Logger is one bot's structured logger: writes to its zerolog sink
// and fans out to subscriber channels.
type Logger struct {
	bot string
	zl  zerolog.Logger

	mu          sync.RWMutex
	subscribers map[chan Entry]struct{}
}

// New builds a Logger for one bot, writing JSON lines to w.
func New(botName string, w io.Writer) *Logger {
	zl := zerolog.New(w).With().Timestamp().Str("bot", botName).Logger()
	return &Logger{bot: botName, zl: zl, subscribers: make(map[chan Entry]struct{})}
}

func (l *Logger) Infof(tag, format string, args ...any) { l.emit("info", tag, format, args...) }
func (l *Logger) Warnf(tag, format string, args ...any) { l.emit("warn", tag, format, args...) }
func (l *Logger) Errorf(tag, format string, args ...any) { l.emit("error", tag, format, args...) }

// Printf satisfies the narrow func(format string, args ...any) shape
// internal/bot.Deps.Log expects, logging at warn level under the
// generic "bot" tag.
func (l *Logger) Printf(format string, args ...any) { l.emit("warn", "bot", format, args...) }

func (l *Logger) emit(level, tag, format string, args ...any) {
	var event *zerolog.Event
	switch level {
	case "info":
		event = l.zl.Info()
	case "error":
		event = l.zl.Error()
	default:
		event = l.zl.Warn()
	}

	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	event.Str("tag", tag).Msg(msg)

	entry := Entry{Time: time.Now(), Bot: l.bot, Level: level, Tag: tag, Message: msg}
	l.mu.RLock()
	for ch := range l.subscribers {
		select {
		case ch <- entry:
		default: // a slow subscriber drops entries rather than blocking logging
		}
	}
	l.mu.RUnlock()
}

// Subscribe returns a channel receiving every future log entry for
// this bot. Call Unsubscribe when done.
func (l *Logger) Subscribe() chan Entry {
	ch := make(chan Entry, 100)
	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()
	return ch
}

func (l *Logger) Unsubscribe(ch chan Entry) {
	l.mu.Lock()
	if _, ok := l.subscribers[ch]; ok {
		delete(l.subscribers, ch)
		close(ch)
	}
	l.mu.Unlock()
}
