/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-28 09:15:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-12 19:06:21
 * @FilePath: \go-taskfarm\types\enums.go
 * @Description: 枚举类型定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package types

import "fmt"

// RunMode 运行模式
type RunMode string

const (
	RunModeMaster RunMode = "master" // 主控节点：创建并分发任务
	RunModeWorker RunMode = "worker" // 工作节点：执行任务并上报结果
)

// RunMode 实现 flag.Value 接口
func (s *RunMode) String() string {
	if s == nil {
		return string(RunModeWorker)
	}
	return string(*s)
}

func (s *RunMode) Set(value string) error {
	mode := RunMode(value)
	if mode != RunModeMaster && mode != RunModeWorker {
		return fmt.Errorf("无效的运行模式: %s，支持的模式: %s, %s", value, RunModeMaster, RunModeWorker)
	}
	*s = mode
	return nil
}

// IsMaster 是否为主控模式
func (m RunMode) IsMaster() bool {
	return m == RunModeMaster
}

// IsWorker 是否为工作模式
func (m RunMode) IsWorker() bool {
	return m == RunModeWorker
}
