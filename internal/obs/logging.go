// Package obs はロギングなどの observability まわり。
package obs

import (
	"log/slog"
	"os"
)

// NewLogger はJSON形式の構造化ロガーを作る。
func NewLogger() *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h)
}
