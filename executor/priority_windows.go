/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-01 09:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\executor\priority_windows.go
 * @Description: 按 CPU 上限下调进程调度优先级（windows）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
//go:build windows

package executor

import (
	"github.com/kamalyes/go-logger"
	"golang.org/x/sys/windows"
)

// applyPriority windows 无 nice 值，按 CPU 上限映射到优先级类
func applyPriority(cpuLimitPercent int, log logger.ILogger) {
	var class uint32
	switch {
	case cpuLimitPercent < 50:
		class = windows.IDLE_PRIORITY_CLASS
	case cpuLimitPercent < 80:
		class = windows.BELOW_NORMAL_PRIORITY_CLASS
	default:
		return
	}

	if err := windows.SetPriorityClass(windows.CurrentProcess(), class); err != nil {
		log.WarnKV("调整进程优先级失败", "class", class, "error", err)
		return
	}
	log.InfoKV("已下调进程优先级", "cpu_limit", cpuLimitPercent, "class", class)
}
