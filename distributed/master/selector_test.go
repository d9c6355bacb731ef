/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-07 09:40:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 19:55:24
 * @FilePath: \go-taskfarm\distributed\master\selector_test.go
 * @Description: Worker 选择策略测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package master

import (
	"testing"

	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/stretchr/testify/assert"
)

// TestRoundRobinCursorPersists 测试轮询游标跨调用保持
func TestRoundRobinCursorPersists(t *testing.T) {
	selector := NewRoundRobinSelector()
	workers := []*common.WorkerInfo{
		{ID: "w1"}, {ID: "w2"}, {ID: "w3"},
	}

	picked := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		picked = append(picked, selector.Pick(workers, common.TaskTypeComputation))
	}
	assert.Equal(t, []string{"w1", "w2", "w3", "w1", "w2"}, picked)
}

// TestRoundRobinShrinkingSet 测试集合缩小后游标取模不越界
func TestRoundRobinShrinkingSet(t *testing.T) {
	selector := NewRoundRobinSelector()
	three := []*common.WorkerInfo{{ID: "w1"}, {ID: "w2"}, {ID: "w3"}}
	one := []*common.WorkerInfo{{ID: "w1"}}

	selector.Pick(three, common.TaskTypeComputation)
	selector.Pick(three, common.TaskTypeComputation)
	assert.Equal(t, "w1", selector.Pick(one, common.TaskTypeComputation))
}

// TestSelectorsEmptyWorkers 测试空集合返回空串
func TestSelectorsEmptyWorkers(t *testing.T) {
	var none []*common.WorkerInfo
	assert.Equal(t, "", NewRoundRobinSelector().Pick(none, common.TaskTypeComputation))
	assert.Equal(t, "", NewLeastBusySelector().Pick(none, common.TaskTypeComputation))
	assert.Equal(t, "", NewFastestSelector().Pick(none, common.TaskTypeComputation))
	assert.Equal(t, "", NewIntelligentSelector().Pick(none, common.TaskTypeComputation))
}

// TestLeastBusyPicksMinimum 测试最空闲策略取活跃任务最少者
func TestLeastBusyPicksMinimum(t *testing.T) {
	selector := NewLeastBusySelector()
	workers := []*common.WorkerInfo{
		{ID: "w1", ActiveTaskCount: 3},
		{ID: "w2", ActiveTaskCount: 1},
		{ID: "w3", ActiveTaskCount: 2},
	}
	assert.Equal(t, "w2", selector.Pick(workers, common.TaskTypeComputation))
}

// TestLeastBusyTieKeepsFirst 测试并列时取先遍历到的
func TestLeastBusyTieKeepsFirst(t *testing.T) {
	selector := NewLeastBusySelector()
	workers := []*common.WorkerInfo{
		{ID: "w1", ActiveTaskCount: 1},
		{ID: "w2", ActiveTaskCount: 1},
	}
	assert.Equal(t, "w1", selector.Pick(workers, common.TaskTypeComputation))
}

// TestFastestPrefersMeasuredLatency 测试最快策略优先已测量的低延迟
func TestFastestPrefersMeasuredLatency(t *testing.T) {
	selector := NewFastestSelector()
	workers := []*common.WorkerInfo{
		{ID: "w1"},                  // 未测量，按哨兵 999ms 参与
		{ID: "w2", LatencyMs: 50},   // 已测量
		{ID: "w3", LatencyMs: 120},  // 已测量
	}
	assert.Equal(t, "w2", selector.Pick(workers, common.TaskTypeComputation))
}

// TestFastestSentinelBeatsExtremeLatency 测试未测量者可胜过超高实测延迟
func TestFastestSentinelBeatsExtremeLatency(t *testing.T) {
	selector := NewFastestSelector()
	workers := []*common.WorkerInfo{
		{ID: "w1", LatencyMs: 1500}, // 实测比哨兵还慢
		{ID: "w2"},                  // 未测量 = 999ms
	}
	assert.Equal(t, "w2", selector.Pick(workers, common.TaskTypeComputation))
}

// TestFastestAllUnmeasured 测试全部未测量时取第一个
func TestFastestAllUnmeasured(t *testing.T) {
	selector := NewFastestSelector()
	workers := []*common.WorkerInfo{{ID: "w1"}, {ID: "w2"}}
	assert.Equal(t, "w1", selector.Pick(workers, common.TaskTypeComputation))
}

// TestIntelligentScoreWeights 测试加权评分公式
func TestIntelligentScoreWeights(t *testing.T) {
	selector := NewIntelligentSelector()
	worker := &common.WorkerInfo{
		ID:              "w1",
		LatencyMs:       30,
		ActiveTaskCount: 2,
		Resources: &common.ResourceSnapshot{
			CPUPercent:    40,
			MemoryPercent: 60,
		},
	}

	// 0.3*60 + 0.2*40 + 0.3*70 + 0.2*80 = 63
	assert.InDelta(t, 63.0, selector.score(worker, common.TaskTypeComputation), 1e-9)
}

// TestIntelligentScoreWithoutSnapshot 测试无资源快照按中位可用度评分
func TestIntelligentScoreWithoutSnapshot(t *testing.T) {
	selector := NewIntelligentSelector()
	worker := &common.WorkerInfo{ID: "w1", LatencyMs: 100, ActiveTaskCount: 0}

	// 0.3*50 + 0.2*50 + 0.3*0 + 0.2*100 = 45（latencyScore = 100-100 = 0）
	assert.InDelta(t, 45.0, selector.score(worker, common.TaskTypeComputation), 1e-9)
}

// TestIntelligentLoadScoreFloor 测试满载 Worker 负载分钳制为 0
func TestIntelligentLoadScoreFloor(t *testing.T) {
	selector := NewIntelligentSelector()
	worker := &common.WorkerInfo{
		ID:              "w1",
		LatencyMs:       50,
		ActiveTaskCount: 15, // 100-150 < 0，钳制为 0
		Resources:       &common.ResourceSnapshot{CPUPercent: 0, MemoryPercent: 0},
	}

	// 0.3*100 + 0.2*100 + 0.3*50 + 0.2*0 = 65
	assert.InDelta(t, 65.0, selector.score(worker, common.TaskTypeComputation), 1e-9)
}

// TestIntelligentPicksHighestScore 测试空闲低延迟 Worker 胜出
func TestIntelligentPicksHighestScore(t *testing.T) {
	selector := NewIntelligentSelector()
	workers := []*common.WorkerInfo{
		{
			ID: "busy", LatencyMs: 200, ActiveTaskCount: 5,
			Resources: &common.ResourceSnapshot{CPUPercent: 90, MemoryPercent: 80},
		},
		{
			ID: "idle", LatencyMs: 20, ActiveTaskCount: 0,
			Resources: &common.ResourceSnapshot{CPUPercent: 10, MemoryPercent: 20},
		},
	}
	assert.Equal(t, "idle", selector.Pick(workers, common.TaskTypeComputation))
}

// TestIntelligentGPUFilterForMachineLearning 测试机器学习任务优先 GPU Worker
func TestIntelligentGPUFilterForMachineLearning(t *testing.T) {
	selector := NewIntelligentSelector()
	workers := []*common.WorkerInfo{
		{
			// 各项更优但无 GPU
			ID: "cpu-only", LatencyMs: 10, ActiveTaskCount: 0,
			Resources: &common.ResourceSnapshot{CPUPercent: 5, MemoryPercent: 10},
		},
		{
			ID: "gpu", LatencyMs: 100, ActiveTaskCount: 3,
			Resources: &common.ResourceSnapshot{CPUPercent: 60, MemoryPercent: 50, HasGPU: true},
		},
	}

	assert.Equal(t, "gpu", selector.Pick(workers, common.TaskTypeMachineLearning))
	// 同一批 Worker 跑普通计算任务时不做 GPU 过滤
	assert.Equal(t, "cpu-only", selector.Pick(workers, common.TaskTypeComputation))
}

// TestIntelligentGPUFallbackWithoutGPU 测试无 GPU 可用时回退全量评分
func TestIntelligentGPUFallbackWithoutGPU(t *testing.T) {
	selector := NewIntelligentSelector()
	workers := []*common.WorkerInfo{
		{
			ID: "busy", LatencyMs: 300, ActiveTaskCount: 8,
			Resources: &common.ResourceSnapshot{CPUPercent: 95, MemoryPercent: 90},
		},
		{
			ID: "idle", LatencyMs: 30, ActiveTaskCount: 0,
			Resources: &common.ResourceSnapshot{CPUPercent: 15, MemoryPercent: 25},
		},
	}
	assert.Equal(t, "idle", selector.Pick(workers, common.TaskTypeMachineLearning))
}

// TestGetSelectorFactory 测试策略工厂
func TestGetSelectorFactory(t *testing.T) {
	assert.IsType(t, &RoundRobinSelector{}, GetSelector(common.SelectStrategyRoundRobin))
	assert.IsType(t, &LeastBusySelector{}, GetSelector(common.SelectStrategyLeastBusy))
	assert.IsType(t, &FastestSelector{}, GetSelector(common.SelectStrategyFastest))
	assert.IsType(t, &IntelligentSelector{}, GetSelector(common.SelectStrategyIntelligent))
	assert.IsType(t, &IntelligentSelector{}, GetSelector(common.SelectStrategy("unknown")))
}
