/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-01 09:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\distributed\master\pool.go
 * @Description: Worker 注册表 - 使用 syncx.Map 实现线程安全
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package master

import (
	"fmt"
	"sort"
	"time"

	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// WorkerPool Worker 注册表
// 断开的 Worker 只标记不删除，延迟等历史在重连后继续有效
type WorkerPool struct {
	workers *syncx.Map[string, *common.WorkerInfo]
	logger  logger.ILogger
}

// NewWorkerPool 创建 Worker 注册表
func NewWorkerPool(log logger.ILogger) *WorkerPool {
	return &WorkerPool{
		workers: syncx.NewMap[string, *common.WorkerInfo](),
		logger:  log,
	}
}

// Register 注册 Worker；重连时刷新原记录并保留延迟历史
func (wp *WorkerPool) Register(worker *common.WorkerInfo) {
	now := time.Now()
	if existing, loaded := wp.workers.Load(worker.ID); loaded {
		wp.workers.Update(worker.ID, func(w *common.WorkerInfo) *common.WorkerInfo {
			w.IP = worker.IP
			w.Port = worker.Port
			w.Status = common.WorkerStateConnected
			w.ConnectedAt = now
			w.LastHeartbeat = now
			w.ActiveTaskCount = 0 // 断线时任务已重排
			return w
		})
		wp.logger.InfoKV("Worker 重新连接", "worker_id", worker.ID, "latency_ms", existing.LatencyMs)
		return
	}

	worker.Status = common.WorkerStateConnected
	worker.ConnectedAt = now
	worker.LastHeartbeat = now
	wp.workers.Store(worker.ID, worker)
	wp.logger.InfoKV("Worker 已注册", "worker_id", worker.ID)
}

// MarkDisconnected 标记 Worker 断开（记录保留）
func (wp *WorkerPool) MarkDisconnected(workerID string) error {
	if !wp.workers.Update(workerID, func(w *common.WorkerInfo) *common.WorkerInfo {
		w.Status = common.WorkerStateDisconnected
		return w
	}) {
		return fmt.Errorf("worker %s not found", workerID)
	}
	return nil
}

// Get 获取指定 Worker
func (wp *WorkerPool) Get(workerID string) (*common.WorkerInfo, bool) {
	return wp.workers.Load(workerID)
}

// GetAll 获取所有 Worker（含已断开）
func (wp *WorkerPool) GetAll() []*common.WorkerInfo {
	workers := make([]*common.WorkerInfo, 0)
	wp.workers.Range(func(_ string, worker *common.WorkerInfo) bool {
		workers = append(workers, worker)
		return true
	})
	return workers
}

// GetConnected 获取已连接 Worker，按 ID 排序保证遍历顺序稳定
func (wp *WorkerPool) GetConnected() []*common.WorkerInfo {
	connected := wp.workers.Filter(func(_ string, worker *common.WorkerInfo) bool {
		return worker.Status == common.WorkerStateConnected
	})
	sort.Slice(connected, func(i, j int) bool {
		return connected[i].ID < connected[j].ID
	})
	return connected
}

// Snapshot 全量拷贝，供外部消费（持锁时间短）
func (wp *WorkerPool) Snapshot() map[string]*common.WorkerInfo {
	snapshot := make(map[string]*common.WorkerInfo, wp.workers.Size())
	wp.workers.Range(func(id string, worker *common.WorkerInfo) bool {
		snapshot[id] = worker.Clone()
		return true
	})
	return snapshot
}

// UpdateResources 整体替换资源快照
func (wp *WorkerPool) UpdateResources(workerID string, snapshot *common.ResourceSnapshot) error {
	if !wp.workers.Update(workerID, func(w *common.WorkerInfo) *common.WorkerInfo {
		w.Resources = snapshot
		return w
	}) {
		return fmt.Errorf("worker %s not found", workerID)
	}
	return nil
}

// UpdateHeartbeat 刷新心跳时间与往返延迟
func (wp *WorkerPool) UpdateHeartbeat(workerID string, latencyMs float64) error {
	if !wp.workers.Update(workerID, func(w *common.WorkerInfo) *common.WorkerInfo {
		w.LastHeartbeat = time.Now()
		if latencyMs >= 0 {
			w.LatencyMs = latencyMs
		}
		return w
	}) {
		return fmt.Errorf("worker %s not found", workerID)
	}
	return nil
}

// SetIdentity 记录 READY 消息宣告的主机名与能力
func (wp *WorkerPool) SetIdentity(workerID, hostname string, capabilities []string) error {
	if !wp.workers.Update(workerID, func(w *common.WorkerInfo) *common.WorkerInfo {
		if hostname != "" {
			w.Hostname = hostname
		}
		if len(capabilities) > 0 {
			w.Capabilities = capabilities
		}
		return w
	}) {
		return fmt.Errorf("worker %s not found", workerID)
	}
	return nil
}

// IncrementTaskCount 任务成功分发后递增活跃计数
func (wp *WorkerPool) IncrementTaskCount(workerID string) {
	wp.workers.Update(workerID, func(w *common.WorkerInfo) *common.WorkerInfo {
		w.ActiveTaskCount++
		return w
	})
}

// DecrementTaskCount 收到该 Worker 的结果后递减，永不为负
func (wp *WorkerPool) DecrementTaskCount(workerID string) {
	wp.workers.Update(workerID, func(w *common.WorkerInfo) *common.WorkerInfo {
		if w.ActiveTaskCount > 0 {
			w.ActiveTaskCount--
		}
		return w
	})
}

// Count Worker 总数
func (wp *WorkerPool) Count() int {
	return wp.workers.Size()
}

// ConnectedCount 已连接数量
func (wp *WorkerPool) ConnectedCount() int {
	return len(wp.GetConnected())
}
