//go:build !linux

package wgiface

import "errors"

// Управление живым интерфейсом поддержано только на linux.
func NewCtrlDevice(name string) (KernelDevice, error) {
	return nil, errors.New("wgiface: kernel device is only supported on linux")
}
