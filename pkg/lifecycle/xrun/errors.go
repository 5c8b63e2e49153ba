package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal 表示因收到系统信号而终止，使用 errors.Is 判断。
	ErrSignal = errors.New("xrun: received signal")

	// ErrNilFunc 表示注册了 nil 组件函数。
	ErrNilFunc = errors.New("xrun: nil func")

	// ErrNilServer 表示 HTTPServer 收到 nil server。
	ErrNilServer = errors.New("xrun: nil server")

	// ErrInvalidInterval 表示 Ticker 的间隔必须为正数。
	ErrInvalidInterval = errors.New("xrun: interval must be positive")
)

// SignalError 携带触发退出的信号
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	if e.Signal == nil {
		return "xrun: received signal <nil>"
	}
	return fmt.Sprintf("xrun: received signal %s", e.Signal)
}

// Unwrap 支持 errors.Is(err, ErrSignal)
func (e *SignalError) Unwrap() error {
	return ErrSignal
}
