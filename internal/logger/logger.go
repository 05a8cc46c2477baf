package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
// levelを省略した場合はInfoレベルとなる。
func Setup(w io.Writer, level ...slog.Level) *slog.Logger {
	lvl := slog.LevelInfo
	if len(level) > 0 {
		lvl = level[0]
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer, level ...slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, level...)
	slog.SetDefault(logger)
	return logger
}
