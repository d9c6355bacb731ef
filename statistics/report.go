/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-02 09:15:36
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 18:31:40
 * @FilePath: \go-taskfarm\statistics\report.go
 * @Description: 任务统计报告
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package statistics

import (
	"fmt"
	"time"

	"github.com/kamalyes/go-taskfarm/logger"
)

// Report 任务统计报告
type Report struct {
	TotalTasks     uint64  `json:"total_tasks"`
	CompletedTasks uint64  `json:"completed_tasks"`
	FailedTasks    uint64  `json:"failed_tasks"`
	RequeuedTasks  uint64  `json:"requeued_tasks"`
	SuccessRate    float64 `json:"success_rate"` // 百分比 0-100

	TotalTime time.Duration `json:"total_time"`

	// 沙箱执行耗时统计
	MinExecTime time.Duration `json:"min_exec_time"`
	MaxExecTime time.Duration `json:"max_exec_time"`
	AvgExecTime time.Duration `json:"avg_exec_time"`
	P50ExecTime time.Duration `json:"p50_exec_time"`
	P90ExecTime time.Duration `json:"p90_exec_time"`
	P95ExecTime time.Duration `json:"p95_exec_time"`
	P99ExecTime time.Duration `json:"p99_exec_time"`

	// 吞吐量（任务/秒）
	Throughput float64 `json:"throughput"`

	ByType   map[string]uint64 `json:"by_type,omitempty"`
	ByWorker map[string]uint64 `json:"by_worker,omitempty"`
	Errors   map[string]uint64 `json:"errors,omitempty"`
}

// Print 打印统计报告
func (r *Report) Print() {
	logger.Default.Info("")
	logger.Default.Info("📊 任务农场统计报告")
	logger.Default.Info("")

	reportData := []map[string]interface{}{
		{"分类": "📈 任务统计", "指标": "总任务数", "值": fmt.Sprintf("%d", r.TotalTasks), "分类2": "⏱️  执行耗时", "指标2": "最小耗时", "值2": r.MinExecTime.String()},
		{"分类": "📈 任务统计", "指标": "已完成", "值": fmt.Sprintf("%d", r.CompletedTasks), "分类2": "⏱️  执行耗时", "指标2": "最大耗时", "值2": r.MaxExecTime.String()},
		{"分类": "📈 任务统计", "指标": "失败", "值": fmt.Sprintf("%d", r.FailedTasks), "分类2": "⏱️  执行耗时", "指标2": "平均耗时", "值2": r.AvgExecTime.String()},
		{"分类": "📈 任务统计", "指标": "重新排队", "值": fmt.Sprintf("%d", r.RequeuedTasks), "分类2": "⏱️  执行耗时", "指标2": "P50", "值2": r.P50ExecTime.String()},
		{"分类": "⚡ 性能指标", "指标": "成功率", "值": fmt.Sprintf("%.2f%%", r.SuccessRate), "分类2": "⏱️  执行耗时", "指标2": "P90", "值2": r.P90ExecTime.String()},
		{"分类": "⚡ 性能指标", "指标": "吞吐量", "值": fmt.Sprintf("%.2f 任务/秒", r.Throughput), "分类2": "⏱️  执行耗时", "指标2": "P95", "值2": r.P95ExecTime.String()},
		{"分类": "⚡ 性能指标", "指标": "总耗时", "值": r.TotalTime.String(), "分类2": "⏱️  执行耗时", "指标2": "P99", "值2": r.P99ExecTime.String()},
	}
	logger.Default.ConsoleTable(reportData)

	if len(r.ByWorker) > 0 {
		logger.Default.Info("")
		logger.Default.Info("🔧 Worker 分布:")
		workerData := make([]map[string]interface{}, 0, len(r.ByWorker))
		for workerID, count := range r.ByWorker {
			workerData = append(workerData, map[string]interface{}{
				"Worker": workerID,
				"任务数":    fmt.Sprintf("%d", count),
			})
		}
		logger.Default.ConsoleTable(workerData)
	}

	if len(r.Errors) > 0 {
		logger.Default.Info("")
		logger.Default.Info("❌ 错误分布:")
		errorData := make([]map[string]interface{}, 0, len(r.Errors))
		for errMsg, count := range r.Errors {
			if len(errMsg) > 80 {
				errMsg = errMsg[:77] + "..."
			}
			errorData = append(errorData, map[string]interface{}{
				"错误": errMsg,
				"次数": fmt.Sprintf("%d", count),
			})
		}
		logger.Default.ConsoleTable(errorData)
	}

	logger.Default.Info("")
}

// Summary 返回单行摘要
func (r *Report) Summary() string {
	return fmt.Sprintf("任务: %d | 成功率: %.2f%% | 吞吐: %.2f/s | 平均执行: %s",
		r.TotalTasks, r.SuccessRate, r.Throughput, r.AvgExecTime)
}
