/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-02 09:15:36
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 18:27:55
 * @FilePath: \go-taskfarm\statistics\collector.go
 * @Description: 任务终态统计收集器
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package statistics

import (
	"time"

	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// TaskOutcome 单个任务的终态记录
type TaskOutcome struct {
	TaskID        string
	Type          common.TaskType
	WorkerID      string
	Success       bool
	Error         string
	ExecutionTime float64 // Worker 沙箱实际执行耗时（秒）
}

// OutcomeFromTask 从终态任务提取统计记录，非终态任务返回 nil
func OutcomeFromTask(task *common.Task) *TaskOutcome {
	if task == nil || !task.Status.IsTerminal() {
		return nil
	}
	return &TaskOutcome{
		TaskID:        task.ID,
		Type:          task.Type,
		WorkerID:      task.WorkerID,
		Success:       task.Status == common.TaskStateCompleted,
		Error:         task.Error,
		ExecutionTime: task.ExecutionTime,
	}
}

// Collector 任务统计收集器
type Collector struct {
	totalTasks     *syncx.Uint64
	completedTasks *syncx.Uint64
	failedTasks    *syncx.Uint64
	requeuedTasks  *syncx.Uint64

	// 执行耗时序列（秒），用于计算百分位
	mu          *syncx.RWLock
	execSeconds []float64
	totalExec   float64
	minExec     float64
	maxExec     float64

	errors   *syncx.Map[string, uint64]
	byType   *syncx.Map[string, uint64]
	byWorker *syncx.Map[string, uint64]
}

// NewCollector 创建统计收集器
func NewCollector() *Collector {
	return &Collector{
		totalTasks:     syncx.NewUint64(0),
		completedTasks: syncx.NewUint64(0),
		failedTasks:    syncx.NewUint64(0),
		requeuedTasks:  syncx.NewUint64(0),
		mu:             syncx.NewRWLock(),
		execSeconds:    make([]float64, 0, 1024),
		errors:         syncx.NewMap[string, uint64](),
		byType:         syncx.NewMap[string, uint64](),
		byWorker:       syncx.NewMap[string, uint64](),
	}
}

// Record 收集单个任务终态
func (c *Collector) Record(outcome *TaskOutcome) {
	if outcome == nil {
		return
	}

	c.totalTasks.Add(1)
	if outcome.Success {
		c.completedTasks.Add(1)
	} else {
		c.failedTasks.Add(1)
		if outcome.Error != "" {
			c.incr(c.errors, outcome.Error)
		}
	}

	if outcome.Type != "" {
		c.incr(c.byType, string(outcome.Type))
	}
	if outcome.WorkerID != "" {
		c.incr(c.byWorker, outcome.WorkerID)
	}

	// 未经沙箱执行的任务（如 Worker 上报错误）没有耗时样本
	if outcome.ExecutionTime <= 0 {
		return
	}
	syncx.WithLock(c.mu, func() {
		c.totalExec += outcome.ExecutionTime
		if len(c.execSeconds) == 0 {
			c.minExec = outcome.ExecutionTime
			c.maxExec = outcome.ExecutionTime
		} else {
			c.minExec = mathx.Min(c.minExec, outcome.ExecutionTime)
			c.maxExec = mathx.Max(c.maxExec, outcome.ExecutionTime)
		}
		c.execSeconds = append(c.execSeconds, outcome.ExecutionTime)
	})
}

// AddRequeues 累计因 Worker 失联被重新排队的任务数
func (c *Collector) AddRequeues(n int) {
	if n > 0 {
		c.requeuedTasks.Add(uint64(n))
	}
}

// Counts 返回任务计数（总数、已完成、失败、重新排队）
func (c *Collector) Counts() (total, completed, failed, requeued uint64) {
	return c.totalTasks.Load(), c.completedTasks.Load(), c.failedTasks.Load(), c.requeuedTasks.Load()
}

// GenerateReport 生成统计报告，totalTime 为 Master 运行总时长
func (c *Collector) GenerateReport(totalTime time.Duration) *Report {
	return syncx.WithRLockReturnValue(c.mu, func() *Report {
		total := c.totalTasks.Load()
		completed := c.completedTasks.Load()

		report := &Report{
			TotalTasks:     total,
			CompletedTasks: completed,
			FailedTasks:    c.failedTasks.Load(),
			RequeuedTasks:  c.requeuedTasks.Load(),
			TotalTime:      totalTime,
			ByType:         c.byType.ToMap(),
			ByWorker:       c.byWorker.ToMap(),
			Errors:         c.errors.ToMap(),
		}

		if total > 0 {
			report.SuccessRate = mathx.Percentage(completed, total)
		}
		if totalTime > 0 {
			report.Throughput = float64(total) / totalTime.Seconds()
		}

		if n := len(c.execSeconds); n > 0 {
			percentiles := mathx.Percentiles(c.execSeconds, 50, 90, 95, 99)
			report.MinExecTime = secondsToDuration(c.minExec)
			report.MaxExecTime = secondsToDuration(c.maxExec)
			report.AvgExecTime = secondsToDuration(c.totalExec / float64(n))
			report.P50ExecTime = secondsToDuration(percentiles[50])
			report.P90ExecTime = secondsToDuration(percentiles[90])
			report.P95ExecTime = secondsToDuration(percentiles[95])
			report.P99ExecTime = secondsToDuration(percentiles[99])
		}

		return report
	})
}

func (c *Collector) incr(m *syncx.Map[string, uint64], key string) {
	count, _ := m.LoadOrStore(key, 0)
	m.Store(key, count+1)
}

// secondsToDuration 秒转 time.Duration
func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
