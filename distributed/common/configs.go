/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-28 10:02:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-17 14:55:09
 * @FilePath: \go-taskfarm\distributed\common\configs.go
 * @Description: 配置结构体定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package common

import (
	"time"
)

// MasterConfig Master 配置
type MasterConfig struct {
	SelectStrategy       SelectStrategy `json:"select_strategy" yaml:"select_strategy"`             // Worker 选择策略
	HeartbeatInterval    time.Duration  `json:"heartbeat_interval" yaml:"heartbeat_interval"`       // 心跳发送间隔
	HeartbeatTimeout     time.Duration  `json:"heartbeat_timeout" yaml:"heartbeat_timeout"`         // 超过该时长无心跳判定失联
	ResourcePollInterval time.Duration  `json:"resource_poll_interval" yaml:"resource_poll_interval"` // 资源轮询间隔
	DispatchInterval     time.Duration  `json:"dispatch_interval" yaml:"dispatch_interval"`         // 自动分发扫描间隔
	AutoDispatch         bool           `json:"auto_dispatch" yaml:"auto_dispatch"`                 // 是否自动分发待执行任务
	ConnectRetries       int            `json:"connect_retries" yaml:"connect_retries"`             // 连接 Worker 重试次数
	ConnectTimeout       time.Duration  `json:"connect_timeout" yaml:"connect_timeout"`             // 单次连接超时
	IOTimeout            time.Duration  `json:"io_timeout" yaml:"io_timeout"`                       // 连接建立后的读写超时基线
	RetryBackoff         time.Duration  `json:"retry_backoff" yaml:"retry_backoff"`                 // 重试之间的固定退避
}

// DefaultMasterConfig 默认 Master 配置
func DefaultMasterConfig() *MasterConfig {
	return &MasterConfig{
		SelectStrategy:       DefaultSelectStrategy,
		HeartbeatInterval:    5 * time.Second,
		HeartbeatTimeout:     15 * time.Second,
		ResourcePollInterval: 10 * time.Second,
		DispatchInterval:     time.Second,
		AutoDispatch:         true,
		ConnectRetries:       3,
		ConnectTimeout:       10 * time.Second,
		IOTimeout:            30 * time.Second,
		RetryBackoff:         3 * time.Second,
	}
}

// WorkerConfig Worker 配置
type WorkerConfig struct {
	ListenIP     string          `json:"listen_ip" yaml:"listen_ip"`       // 监听地址，空表示 0.0.0.0
	ListenPort   int             `json:"listen_port" yaml:"listen_port"`   // 监听端口
	AdvertiseIP  string          `json:"advertise_ip" yaml:"advertise_ip"` // 对外宣告 IP，空则自动探测内网 IP
	Capabilities []string        `json:"capabilities" yaml:"capabilities"` // READY 消息宣告的能力
	IOTimeout    time.Duration   `json:"io_timeout" yaml:"io_timeout"`     // 会话读写超时，Master 心跳静默超过该值视为失联
	Executor     *ExecutorConfig `json:"executor" yaml:"executor"`         // 沙箱执行器配置
}

// DefaultWorkerConfig 默认 Worker 配置
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		ListenIP:     "",
		ListenPort:   5001,
		Capabilities: []string{"computation", "data_analysis"},
		IOTimeout:    30 * time.Second,
		Executor:     DefaultExecutorConfig(),
	}
}

// DiscoveryConfig UDP 发现配置
type DiscoveryConfig struct {
	Enabled           bool          `json:"enabled" yaml:"enabled"`
	Port              int           `json:"port" yaml:"port"`                             // 固定发现端口
	BroadcastInterval time.Duration `json:"broadcast_interval" yaml:"broadcast_interval"` // worker_discovery / master_probe 发送间隔
	StaleTimeout      time.Duration `json:"stale_timeout" yaml:"stale_timeout"`           // 超时未刷新即剔除
}

// DefaultDiscoveryConfig 默认发现配置
func DefaultDiscoveryConfig() *DiscoveryConfig {
	return &DiscoveryConfig{
		Enabled:           true,
		Port:              5000,
		BroadcastInterval: 3 * time.Second,
		StaleTimeout:      15 * time.Second,
	}
}

// 执行器资源上限边界
const (
	MinCPULimitPercent = 10
	MaxCPULimitPercent = 100
	MinMemoryLimitMB   = 256
	MaxMemoryLimitMB   = 8192
)

// ExecutorConfig 沙箱执行器配置
type ExecutorConfig struct {
	CPULimitPercent  int           `json:"cpu_limit_percent" yaml:"cpu_limit_percent"` // 10-100
	MemoryLimitMB    int           `json:"memory_limit_mb" yaml:"memory_limit_mb"`     // 256-8192
	MaxExecutionTime time.Duration `json:"max_execution_time" yaml:"max_execution_time"`
	SampleInterval   time.Duration `json:"sample_interval" yaml:"sample_interval"` // 资源监控采样间隔
	AdjustPriority   bool          `json:"adjust_priority" yaml:"adjust_priority"` // 是否按 CPU 上限调整进程优先级
}

// DefaultExecutorConfig 默认执行器配置
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		CPULimitPercent:  100,
		MemoryLimitMB:    1024,
		MaxExecutionTime: 300 * time.Second,
		SampleInterval:   50 * time.Millisecond,
		AdjustPriority:   true,
	}
}

// Normalize 将资源上限收敛到允许区间
func (c *ExecutorConfig) Normalize() {
	if c.CPULimitPercent < MinCPULimitPercent {
		c.CPULimitPercent = MinCPULimitPercent
	}
	if c.CPULimitPercent > MaxCPULimitPercent {
		c.CPULimitPercent = MaxCPULimitPercent
	}
	if c.MemoryLimitMB < MinMemoryLimitMB {
		c.MemoryLimitMB = MinMemoryLimitMB
	}
	if c.MemoryLimitMB > MaxMemoryLimitMB {
		c.MemoryLimitMB = MaxMemoryLimitMB
	}
	if c.MaxExecutionTime <= 0 {
		c.MaxExecutionTime = 300 * time.Second
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = 50 * time.Millisecond
	}
}
