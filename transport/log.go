package transport

import (
	"strings"

	log "github.com/treeforest/logger"
)

// logWriter 将 memberlist 的日志输出到 logger
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	// 去掉标准库日志的时间前缀
	if i := strings.Index(line, "["); i > 0 {
		line = line[i:]
	}
	switch {
	case strings.HasPrefix(line, "[ERR]"):
		log.Errorf("%s", line)
	case strings.HasPrefix(line, "[WARN]"):
		log.Warn(line)
	default:
		log.Debug(line)
	}
	return len(p), nil
}
