/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-01 09:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\distributed\master\selector.go
 * @Description: Worker 选择策略实现
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package master

import (
	"sync"

	"github.com/kamalyes/go-taskfarm/distributed/common"
)

// 未测量延迟的哨兵值（毫秒），未测量者靠后但不被排除
const latencySentinelMs = 999

// WorkerSelector Worker 选择器接口
// 入参为已连接 Worker 的有序列表，返回选中的 Worker ID，空串表示无可用
type WorkerSelector interface {
	Pick(workers []*common.WorkerInfo, taskType common.TaskType) string
}

// RoundRobinSelector 轮询选择器，游标跨调用保持
type RoundRobinSelector struct {
	mu    sync.Mutex
	index int
}

// NewRoundRobinSelector 创建轮询选择器
func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{}
}

// Pick 按游标轮询
func (s *RoundRobinSelector) Pick(workers []*common.WorkerInfo, _ common.TaskType) string {
	if len(workers) == 0 {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	picked := workers[s.index%len(workers)]
	s.index++
	return picked.ID
}

// LeastBusySelector 活跃任务数最少选择器
type LeastBusySelector struct{}

// NewLeastBusySelector 创建最空闲选择器
func NewLeastBusySelector() *LeastBusySelector {
	return &LeastBusySelector{}
}

// Pick 取 ActiveTaskCount 最小者，相同时取先遍历到的
func (s *LeastBusySelector) Pick(workers []*common.WorkerInfo, _ common.TaskType) string {
	if len(workers) == 0 {
		return ""
	}
	best := workers[0]
	for _, w := range workers[1:] {
		if w.ActiveTaskCount < best.ActiveTaskCount {
			best = w
		}
	}
	return best.ID
}

// FastestSelector 延迟最低选择器
type FastestSelector struct{}

// NewFastestSelector 创建最低延迟选择器
func NewFastestSelector() *FastestSelector {
	return &FastestSelector{}
}

// Pick 取测量延迟最低者，未测量的按哨兵值参与比较
func (s *FastestSelector) Pick(workers []*common.WorkerInfo, _ common.TaskType) string {
	if len(workers) == 0 {
		return ""
	}
	best := workers[0]
	bestLatency := effectiveLatency(best)
	for _, w := range workers[1:] {
		if l := effectiveLatency(w); l < bestLatency {
			best = w
			bestLatency = l
		}
	}
	return best.ID
}

// effectiveLatency 零值视为未测量
func effectiveLatency(w *common.WorkerInfo) float64 {
	if w.LatencyMs <= 0 {
		return latencySentinelMs
	}
	return w.LatencyMs
}

// IntelligentSelector 加权评分选择器（默认策略）
// score = 0.3*cpu可用 + 0.2*内存可用 + 0.3*延迟分 + 0.2*负载分，各项归一化到 0-100
type IntelligentSelector struct{}

// NewIntelligentSelector 创建智能选择器
func NewIntelligentSelector() *IntelligentSelector {
	return &IntelligentSelector{}
}

// Pick 能力过滤后按加权评分取最高，评分相同取先遍历到的；
// 过滤后为空时回退到全量集合的第一个成员
func (s *IntelligentSelector) Pick(workers []*common.WorkerInfo, taskType common.TaskType) string {
	if len(workers) == 0 {
		return ""
	}

	candidates := workers
	if taskType.RequiresGPU() {
		gpuFilter := &common.WorkerFilter{RequireGPU: true}
		gpuWorkers := make([]*common.WorkerInfo, 0, len(workers))
		for _, w := range workers {
			if gpuFilter.IsWorkerValid(w) {
				gpuWorkers = append(gpuWorkers, w)
			}
		}
		if len(gpuWorkers) > 0 {
			candidates = gpuWorkers
		}
	}
	if len(candidates) == 0 {
		return workers[0].ID
	}

	best := candidates[0]
	bestScore := s.score(best, taskType)
	for _, w := range candidates[1:] {
		if score := s.score(w, taskType); score > bestScore {
			best = w
			bestScore = score
		}
	}
	return best.ID
}

// score 计算单个 Worker 的加权评分
func (s *IntelligentSelector) score(w *common.WorkerInfo, taskType common.TaskType) float64 {
	// 无快照时按中位可用度参与评分
	cpuAvailable := 50.0
	memAvailable := 50.0
	hasGPU := false
	if w.Resources != nil {
		cpuAvailable = clampScore(100 - w.Resources.CPUPercent)
		memAvailable = clampScore(100 - w.Resources.MemoryPercent)
		hasGPU = w.Resources.HasGPU
	}

	latencyScore := clampScore(100 - effectiveLatency(w))
	loadScore := clampScore(float64(100 - 10*w.ActiveTaskCount))

	score := 0.3*cpuAvailable + 0.2*memAvailable + 0.3*latencyScore + 0.2*loadScore
	if taskType.RequiresGPU() && hasGPU {
		score += 20
	}
	return score
}

// clampScore 归一化到 [0,100]
func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// GetSelector 根据策略获取选择器
func GetSelector(strategy common.SelectStrategy) WorkerSelector {
	switch strategy {
	case common.SelectStrategyRoundRobin:
		return NewRoundRobinSelector()
	case common.SelectStrategyLeastBusy:
		return NewLeastBusySelector()
	case common.SelectStrategyFastest:
		return NewFastestSelector()
	case common.SelectStrategyIntelligent:
		return NewIntelligentSelector()
	default:
		return NewIntelligentSelector()
	}
}
