package graceful

import (
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Stop 阻塞直到收到中断信号，然后执行 fn
func Stop(fn func()) {
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(done)
	<-done
	fn()
}

// StopWithTime 执行 fn 后再等待 duration，留给后台任务退出
func StopWithTime(duration time.Duration, fn func()) {
	Stop(fn)
	time.Sleep(duration)
}
