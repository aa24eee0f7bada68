package eeprom

import (
	"context"
	"log/slog"
)

// LevelTrace 每个事务都会输出，量很大
const LevelTrace slog.Level = slog.LevelDebug - 2

func (t *EEPROM) logenabled(lvl slog.Level) bool {
	return t.Logger != nil && t.Logger.Handler().Enabled(context.Background(), lvl)
}

func (t *EEPROM) logattrs(lvl slog.Level, msg string, attrs ...slog.Attr) {
	if t.logenabled(lvl) {
		t.Logger.LogAttrs(context.Background(), lvl, msg, attrs...)
	}
}

func (t *EEPROM) debug(msg string, attrs ...slog.Attr) {
	t.logattrs(slog.LevelDebug, msg, attrs...)
}

func (t *EEPROM) trace(msg string, attrs ...slog.Attr) {
	t.logattrs(LevelTrace, msg, attrs...)
}

func (t *EEPROM) logerr(msg string, attrs ...slog.Attr) {
	t.logattrs(slog.LevelError, msg, attrs...)
}
