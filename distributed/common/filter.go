/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-28 10:02:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-15 23:04:51
 * @FilePath: \go-taskfarm\distributed\common\filter.go
 * @Description: Worker 筛选条件及校验方法
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package common

// WorkerFilter Worker 筛选条件
type WorkerFilter struct {
	IncludeIDs           []string `json:"include_ids" yaml:"include_ids"`                     // 包含的 Worker ID 列表
	ExcludeIDs           []string `json:"exclude_ids" yaml:"exclude_ids"`                     // 排除的 Worker ID 列表
	RequiredCapabilities []string `json:"required_capabilities" yaml:"required_capabilities"` // 必须具备的能力
	RequireGPU           bool     `json:"require_gpu" yaml:"require_gpu"`                     // 必须具备 GPU
	MaxActiveTasks       int      `json:"max_active_tasks" yaml:"max_active_tasks"`           // 最大活跃任务数，0 表示不限
	MaxCPUPercent        float64  `json:"max_cpu_percent" yaml:"max_cpu_percent"`             // 最大 CPU 使用率，0 表示不限
	MaxMemoryPercent     float64  `json:"max_memory_percent" yaml:"max_memory_percent"`       // 最大内存使用率，0 表示不限
}

// IsWorkerValid 检查 Worker 是否符合筛选条件
func (f *WorkerFilter) IsWorkerValid(worker *WorkerInfo) bool {
	if f == nil || worker == nil {
		return worker != nil
	}

	if len(f.IncludeIDs) > 0 {
		found := false
		for _, id := range f.IncludeIDs {
			if worker.ID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, id := range f.ExcludeIDs {
		if worker.ID == id {
			return false
		}
	}

	for _, required := range f.RequiredCapabilities {
		found := false
		for _, cap := range worker.Capabilities {
			if cap == required {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.RequireGPU {
		if worker.Resources == nil || !worker.Resources.HasGPU {
			return false
		}
	}

	if f.MaxActiveTasks > 0 && worker.ActiveTaskCount > f.MaxActiveTasks {
		return false
	}

	if worker.Resources != nil {
		if f.MaxCPUPercent > 0 && worker.Resources.CPUPercent > f.MaxCPUPercent {
			return false
		}
		if f.MaxMemoryPercent > 0 && worker.Resources.MemoryPercent > f.MaxMemoryPercent {
			return false
		}
	}

	return true
}
