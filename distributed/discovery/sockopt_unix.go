/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-30 11:20:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-05 09:37:52
 * @FilePath: \go-taskfarm\distributed\discovery\sockopt_unix.go
 * @Description: 发现套接字选项（unix）：地址复用 + 广播
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
//go:build !windows

package discovery

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// discoverySocketControl 固定发现端口允许 Master 与 Worker 同机共存，
// 并放开广播发送权限
func discoverySocketControl(network, address string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if opErr != nil {
			return
		}
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		if opErr != nil {
			return
		}
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
