/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-01 09:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\executor\priority_unix.go
 * @Description: 按 CPU 上限下调进程调度优先级（unix）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
//go:build !windows

package executor

import (
	"github.com/kamalyes/go-logger"
	"golang.org/x/sys/unix"
)

// applyPriority CPU 上限越低 nice 值越高，失败只记日志不影响执行
func applyPriority(cpuLimitPercent int, log logger.ILogger) {
	nice := 0
	switch {
	case cpuLimitPercent < 50:
		nice = 10
	case cpuLimitPercent < 80:
		nice = 5
	}
	if nice == 0 {
		return
	}

	if err := unix.Setpriority(unix.PRIO_PROCESS, 0, nice); err != nil {
		log.WarnKV("调整进程优先级失败", "nice", nice, "error", err)
		return
	}
	log.InfoKV("已下调进程优先级", "cpu_limit", cpuLimitPercent, "nice", nice)
}
