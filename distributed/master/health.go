/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-01 09:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\distributed\master\health.go
 * @Description: Worker 心跳健康检查
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package master

import (
	"context"
	"time"

	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// HealthChecker 健康检查器 - 使用 syncx.PeriodicTask
// 只负责发现心跳超时的 Worker，实际的会话拆除与任务重排由 onExpired 回调完成
type HealthChecker struct {
	pool      *WorkerPool
	interval  time.Duration
	timeout   time.Duration
	onExpired func(workerID string)
	logger    logger.ILogger
	manager   *syncx.PeriodicTaskManager
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(pool *WorkerPool, interval, timeout time.Duration, onExpired func(workerID string), log logger.ILogger) *HealthChecker {
	return &HealthChecker{
		pool:      pool,
		interval:  interval,
		timeout:   timeout,
		onExpired: onExpired,
		logger:    log,
		manager:   syncx.NewPeriodicTaskManager(),
	}
}

// Start 启动健康检查，ctx 取消后自动停止
func (hc *HealthChecker) Start(ctx context.Context) {
	task := syncx.NewPeriodicTask("health-check", hc.interval, func(taskCtx context.Context) error {
		hc.checkAll()
		return nil
	}).
		SetOnError(func(name string, err error) {
			hc.logger.ErrorKV("Health check task error", "task", name, "error", err)
		}).
		SetOnStart(func(name string) {
			hc.logger.InfoKV("Health checker started", "interval", hc.interval, "timeout", hc.timeout)
		}).
		SetOnStop(func(name string) {
			hc.logger.Info("Health checker stopped")
		})

	hc.manager.AddTask(task)
	hc.manager.StartWithContext(ctx)
}

// checkAll 并行检查所有已连接 Worker
func (hc *HealthChecker) checkAll() {
	workers := hc.pool.GetConnected()

	syncx.ParallelForEachSlice(workers, func(idx int, worker *common.WorkerInfo) {
		hc.checkWorker(worker)
	})
}

// checkWorker 检查单个 Worker 的心跳时效
func (hc *HealthChecker) checkWorker(worker *common.WorkerInfo) {
	silence := time.Since(worker.LastHeartbeat)
	if silence <= hc.timeout {
		return
	}

	hc.logger.WarnKV("Worker heartbeat expired",
		"worker_id", worker.ID,
		"hostname", worker.Hostname,
		"silence", silence)

	if hc.onExpired != nil {
		hc.onExpired(worker.ID)
	}
}
