/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-30 11:20:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-05 09:37:52
 * @FilePath: \go-taskfarm\distributed\discovery\sockopt_windows.go
 * @Description: 发现套接字选项（windows）：地址复用 + 广播
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
//go:build windows

package discovery

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// discoverySocketControl windows 无 SO_REUSEPORT，仅设置地址复用与广播
func discoverySocketControl(network, address string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
		if opErr != nil {
			return
		}
		opErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
