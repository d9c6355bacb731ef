/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-07 09:40:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 20:15:49
 * @FilePath: \go-taskfarm\distributed\master\queue_test.go
 * @Description: 任务生命周期与队列测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package master

import (
	"fmt"
	"testing"
	"time"

	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-taskfarm/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCreateTask 测试创建任务入队
func TestCreateTask(t *testing.T) {
	tm := NewTaskManager(logger.New())

	task := tm.Create(common.TaskTypeComputation, "result=1", map[string]any{"n": 21})

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, common.TaskStatePending, task.Status)
	assert.False(t, task.CreatedAt.IsZero())
	assert.Equal(t, 1, tm.PendingCount())
	assert.Equal(t, 1, tm.Size())

	next, ok := tm.NextPending()
	assert.True(t, ok)
	assert.Equal(t, task.ID, next)
}

// TestCreateReturnsClone 测试返回副本与内部状态隔离
func TestCreateReturnsClone(t *testing.T) {
	tm := NewTaskManager(logger.New())

	task := tm.Create(common.TaskTypeComputation, "result=1", map[string]any{"n": 21})
	task.Status = common.TaskStateFailed
	task.Data["n"] = 99

	stored, ok := tm.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, common.TaskStatePending, stored.Status)
	assert.Equal(t, 21, stored.Data["n"].(int))
}

// TestAssignTask 测试任务绑定 Worker
func TestAssignTask(t *testing.T) {
	tm := NewTaskManager(logger.New())
	task := tm.Create(common.TaskTypeComputation, "result=1", nil)

	require.NoError(t, tm.Assign(task.ID, "w1"))

	stored, _ := tm.Get(task.ID)
	assert.Equal(t, common.TaskStateRunning, stored.Status)
	assert.Equal(t, "w1", stored.WorkerID)
	assert.False(t, stored.StartedAt.IsZero())
	assert.Equal(t, 0, tm.PendingCount(), "派发后移出待派发队列")
}

// TestAssignIdempotentRebind 测试重复派发只换绑不产生新状态
func TestAssignIdempotentRebind(t *testing.T) {
	tm := NewTaskManager(logger.New())
	task := tm.Create(common.TaskTypeComputation, "result=1", nil)

	require.NoError(t, tm.Assign(task.ID, "w1"))
	require.NoError(t, tm.Assign(task.ID, "w1")) // 原 Worker 重派发
	require.NoError(t, tm.Assign(task.ID, "w2")) // 换绑

	stored, _ := tm.Get(task.ID)
	assert.Equal(t, common.TaskStateRunning, stored.Status)
	assert.Equal(t, "w2", stored.WorkerID)
}

// TestAssignErrors 测试未知任务与终态任务不可派发
func TestAssignErrors(t *testing.T) {
	tm := NewTaskManager(logger.New())

	assert.Error(t, tm.Assign("ghost", "w1"))

	task := tm.Create(common.TaskTypeComputation, "result=1", nil)
	require.NoError(t, tm.Assign(task.ID, "w1"))
	_, err := tm.Complete(task.ID, map[string]any{"success": true})
	require.NoError(t, err)

	assert.Error(t, tm.Assign(task.ID, "w2"))
}

// TestCompleteSuccess 测试成功结果落终态
func TestCompleteSuccess(t *testing.T) {
	tm := NewTaskManager(logger.New())
	task := tm.Create(common.TaskTypeComputation, "result={'x':data['n']*2}", map[string]any{"n": 21})
	require.NoError(t, tm.Assign(task.ID, "w1"))

	finalized, err := tm.Complete(task.ID, map[string]any{
		"success":        true,
		"result":         map[string]any{"x": 42.0},
		"execution_time": 1.25,
		"stdout":         "hello",
	})
	require.NoError(t, err)
	assert.True(t, finalized)

	stored, _ := tm.Get(task.ID)
	assert.Equal(t, common.TaskStateCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, map[string]any{"x": 42.0}, stored.Result)
	assert.Equal(t, 1.25, stored.ExecutionTime)
	assert.False(t, stored.CompletedAt.IsZero())
	assert.Empty(t, stored.Error)
}

// TestCompleteFailure 测试失败结果与缺省错误文案
func TestCompleteFailure(t *testing.T) {
	tm := NewTaskManager(logger.New())
	task := tm.Create(common.TaskTypeComputation, "boom", nil)
	require.NoError(t, tm.Assign(task.ID, "w1"))

	finalized, err := tm.Complete(task.ID, map[string]any{
		"success": false,
		"error":   "ReferenceError: boom is not defined",
		"stderr":  "stack trace",
	})
	require.NoError(t, err)
	assert.True(t, finalized)

	stored, _ := tm.Get(task.ID)
	assert.Equal(t, common.TaskStateFailed, stored.Status)
	assert.Equal(t, "ReferenceError: boom is not defined", stored.Error)
}

// TestCompleteFailureDefaultError 测试失败且无错误信息时补缺省文案
func TestCompleteFailureDefaultError(t *testing.T) {
	tm := NewTaskManager(logger.New())
	task := tm.Create(common.TaskTypeComputation, "boom", nil)
	require.NoError(t, tm.Assign(task.ID, "w1"))

	_, err := tm.Complete(task.ID, map[string]any{"success": false})
	require.NoError(t, err)

	stored, _ := tm.Get(task.ID)
	assert.Equal(t, "unknown error", stored.Error)
}

// TestCompleteDuplicateIgnored 测试重复上报幂等且不再触发终态转换
func TestCompleteDuplicateIgnored(t *testing.T) {
	tm := NewTaskManager(logger.New())
	task := tm.Create(common.TaskTypeComputation, "result=1", nil)
	require.NoError(t, tm.Assign(task.ID, "w1"))

	finalized, err := tm.Complete(task.ID, map[string]any{"success": true, "result": "first"})
	require.NoError(t, err)
	require.True(t, finalized)

	// 迟到的重复结果（甚至矛盾的结果）直接忽略
	finalized, err = tm.Complete(task.ID, map[string]any{"success": false, "error": "late failure"})
	assert.NoError(t, err)
	assert.False(t, finalized)

	stored, _ := tm.Get(task.ID)
	assert.Equal(t, common.TaskStateCompleted, stored.Status)
	assert.Equal(t, "first", stored.Result)
	assert.Empty(t, stored.Error)
}

// TestCompleteErrors 测试未知任务与未派发任务的结果被拒绝
func TestCompleteErrors(t *testing.T) {
	tm := NewTaskManager(logger.New())

	_, err := tm.Complete("ghost", map[string]any{"success": true})
	assert.Error(t, err)

	// Pending 任务不存在合法的 Pending -> Completed 转换
	task := tm.Create(common.TaskTypeComputation, "result=1", nil)
	_, err = tm.Complete(task.ID, map[string]any{"success": true})
	assert.Error(t, err)
}

// TestUpdateProgress 测试进度钳制与边界
func TestUpdateProgress(t *testing.T) {
	tm := NewTaskManager(logger.New())
	task := tm.Create(common.TaskTypeComputation, "result=1", nil)
	require.NoError(t, tm.Assign(task.ID, "w1"))

	assert.True(t, tm.UpdateProgress(task.ID, 42))
	stored, _ := tm.Get(task.ID)
	assert.Equal(t, 42, stored.Progress)

	assert.True(t, tm.UpdateProgress(task.ID, -5))
	stored, _ = tm.Get(task.ID)
	assert.Equal(t, 0, stored.Progress)

	assert.True(t, tm.UpdateProgress(task.ID, 150))
	stored, _ = tm.Get(task.ID)
	assert.Equal(t, 100, stored.Progress)

	assert.False(t, tm.UpdateProgress("ghost", 10), "未知任务的进度忽略")
}

// TestUpdateProgressTerminalIgnored 测试终态任务忽略迟到进度
func TestUpdateProgressTerminalIgnored(t *testing.T) {
	tm := NewTaskManager(logger.New())
	task := tm.Create(common.TaskTypeComputation, "result=1", nil)
	require.NoError(t, tm.Assign(task.ID, "w1"))
	_, err := tm.Complete(task.ID, map[string]any{"success": true})
	require.NoError(t, err)

	assert.False(t, tm.UpdateProgress(task.ID, 50))
	stored, _ := tm.Get(task.ID)
	assert.Equal(t, 100, stored.Progress, "完成任务的进度保持 100")
}

// TestRequeueForWorker 测试 Worker 失联后任务重排
func TestRequeueForWorker(t *testing.T) {
	tm := NewTaskManager(logger.New())

	first := tm.Create(common.TaskTypeComputation, "result=1", nil)
	time.Sleep(2 * time.Millisecond)
	second := tm.Create(common.TaskTypeComputation, "result=2", nil)
	time.Sleep(2 * time.Millisecond)
	other := tm.Create(common.TaskTypeComputation, "result=3", nil)
	done := tm.Create(common.TaskTypeComputation, "result=4", nil)

	require.NoError(t, tm.Assign(first.ID, "w1"))
	require.NoError(t, tm.Assign(second.ID, "w1"))
	require.NoError(t, tm.Assign(other.ID, "w2"))
	require.NoError(t, tm.Assign(done.ID, "w1"))
	_, err := tm.Complete(done.ID, map[string]any{"success": true})
	require.NoError(t, err)

	requeued := tm.RequeueForWorker("w1")
	assert.Equal(t, []string{first.ID, second.ID}, requeued, "按创建时间排序，终态任务不重排")

	for _, id := range requeued {
		task, _ := tm.Get(id)
		assert.Equal(t, common.TaskStatePending, task.Status)
		assert.Empty(t, task.WorkerID)
		assert.True(t, task.StartedAt.IsZero())
		assert.Equal(t, 0, task.Progress)
	}

	// w2 的任务不受影响
	otherTask, _ := tm.Get(other.ID)
	assert.Equal(t, common.TaskStateRunning, otherTask.Status)

	// 幂等：再次重排无事发生
	assert.Empty(t, tm.RequeueForWorker("w1"))
}

// TestRequeueSingle 测试派发失败回滚单个任务
func TestRequeueSingle(t *testing.T) {
	tm := NewTaskManager(logger.New())
	task := tm.Create(common.TaskTypeComputation, "result=1", nil)
	require.NoError(t, tm.Assign(task.ID, "w1"))

	require.NoError(t, tm.Requeue(task.ID))

	stored, _ := tm.Get(task.ID)
	assert.Equal(t, common.TaskStatePending, stored.Status)
	assert.Equal(t, 1, tm.PendingCount())

	next, ok := tm.NextPending()
	assert.True(t, ok)
	assert.Equal(t, task.ID, next)
}

// TestRequeueErrors 测试终态与未知任务不可重排
func TestRequeueErrors(t *testing.T) {
	tm := NewTaskManager(logger.New())

	assert.Error(t, tm.Requeue("ghost"))

	task := tm.Create(common.TaskTypeComputation, "result=1", nil)
	require.NoError(t, tm.Assign(task.ID, "w1"))
	_, err := tm.Complete(task.ID, map[string]any{"success": true})
	require.NoError(t, err)

	assert.Error(t, tm.Requeue(task.ID))
}

// TestRequeueThenReassign 测试重排后可再次派发并完成
func TestRequeueThenReassign(t *testing.T) {
	tm := NewTaskManager(logger.New())
	task := tm.Create(common.TaskTypeComputation, "result=1", nil)

	require.NoError(t, tm.Assign(task.ID, "w1"))
	requeued := tm.RequeueForWorker("w1")
	require.Equal(t, 1, len(requeued))

	require.NoError(t, tm.Assign(task.ID, "w2"))
	finalized, err := tm.Complete(task.ID, map[string]any{"success": true})
	require.NoError(t, err)
	assert.True(t, finalized)

	stored, _ := tm.Get(task.ID)
	assert.Equal(t, common.TaskStateCompleted, stored.Status)
	assert.Equal(t, "w2", stored.WorkerID)
}

// TestPendingFIFO 测试待派发队列先进先出
func TestPendingFIFO(t *testing.T) {
	tm := NewTaskManager(logger.New())

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		task := tm.Create(common.TaskTypeComputation, fmt.Sprintf("result=%d", i), nil)
		ids = append(ids, task.ID)
	}

	next, _ := tm.NextPending()
	assert.Equal(t, ids[0], next)

	require.NoError(t, tm.Assign(ids[0], "w1"))
	next, _ = tm.NextPending()
	assert.Equal(t, ids[1], next)

	_, ok := tm.NextPending()
	assert.True(t, ok)
}

// TestStatsAndGetByStatus 测试统计与状态筛选
func TestStatsAndGetByStatus(t *testing.T) {
	tm := NewTaskManager(logger.New())

	pending := tm.Create(common.TaskTypeComputation, "result=1", nil)
	running := tm.Create(common.TaskTypeComputation, "result=2", nil)
	completed := tm.Create(common.TaskTypeComputation, "result=3", nil)
	failed := tm.Create(common.TaskTypeComputation, "result=4", nil)

	require.NoError(t, tm.Assign(running.ID, "w1"))
	require.NoError(t, tm.Assign(completed.ID, "w1"))
	require.NoError(t, tm.Assign(failed.ID, "w1"))
	_, err := tm.Complete(completed.ID, map[string]any{"success": true})
	require.NoError(t, err)
	_, err = tm.Complete(failed.ID, map[string]any{"success": false, "error": "x"})
	require.NoError(t, err)

	stats := tm.Stats()
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Running)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)

	assert.Equal(t, 1, len(tm.GetByStatus(common.TaskStatePending)))
	assert.Equal(t, pending.ID, tm.GetByStatus(common.TaskStatePending)[0].ID)
	assert.Equal(t, 4, len(tm.GetAll()))
}

// TestClearFinishedOnly 测试只清理终态任务
func TestClearFinishedOnly(t *testing.T) {
	tm := NewTaskManager(logger.New())

	keep := tm.Create(common.TaskTypeComputation, "result=1", nil)
	gone := tm.Create(common.TaskTypeComputation, "result=2", nil)
	require.NoError(t, tm.Assign(gone.ID, "w1"))
	_, err := tm.Complete(gone.ID, map[string]any{"success": true})
	require.NoError(t, err)

	assert.Equal(t, 1, tm.Clear())
	assert.Equal(t, 1, tm.Size())

	_, ok := tm.Get(gone.ID)
	assert.False(t, ok)
	_, ok = tm.Get(keep.ID)
	assert.True(t, ok)
}

// ============ 展示文本拼接 ============

// TestBuildOutputAllSections 测试四段齐全的拼接
func TestBuildOutputAllSections(t *testing.T) {
	out := buildOutput("printed", "warned", `{"x":42}`, "failed")
	expected := "STDOUT:\nprinted\n\nSTDERR:\nwarned\n\nRESULT:\n{\"x\":42}\n\nERROR:\nfailed"
	assert.Equal(t, expected, out)
}

// TestBuildOutputSkipsEmptySections 测试空段落不出现
func TestBuildOutputSkipsEmptySections(t *testing.T) {
	assert.Equal(t, "STDOUT:\nhello", buildOutput("hello", "", "", ""))
	assert.Equal(t, "RESULT:\n42\n\nERROR:\nboom", buildOutput("", "", "42", "boom"))
	assert.Equal(t, "", buildOutput("", "", "", ""))
}

// TestCompleteAssemblesOutput 测试完成路径生成展示文本
func TestCompleteAssemblesOutput(t *testing.T) {
	tm := NewTaskManager(logger.New())
	task := tm.Create(common.TaskTypeComputation, "result={'x':data['n']*2}", map[string]any{"n": 21})
	require.NoError(t, tm.Assign(task.ID, "w1"))

	_, err := tm.Complete(task.ID, map[string]any{
		"success": true,
		"result":  map[string]any{"x": 42.0},
		"stdout":  "computing",
	})
	require.NoError(t, err)

	stored, _ := tm.Get(task.ID)
	assert.Equal(t, "STDOUT:\ncomputing\n\nRESULT:\n{\"x\":42}", stored.Output)
}

// TestFormatResultValue 测试结果值展示转换
func TestFormatResultValue(t *testing.T) {
	assert.Equal(t, "", formatResultValue(nil))
	assert.Equal(t, "plain", formatResultValue("plain"))
	assert.Equal(t, `{"x":42}`, formatResultValue(map[string]any{"x": 42.0}))
	assert.Equal(t, "3.5", formatResultValue(3.5))
}

// TestPayloadHelpers 测试载荷取值工具
func TestPayloadHelpers(t *testing.T) {
	payload := map[string]any{
		"s":  "text",
		"f":  1.5,
		"i":  int(2),
		"i6": int64(3),
	}

	assert.Equal(t, "text", payloadString(payload, "s"))
	assert.Equal(t, "", payloadString(payload, "f"))
	assert.Equal(t, "", payloadString(payload, "missing"))
	assert.Equal(t, 1.5, payloadFloat(payload, "f"))
	assert.Equal(t, 2.0, payloadFloat(payload, "i"))
	assert.Equal(t, 3.0, payloadFloat(payload, "i6"))
	assert.Equal(t, 0.0, payloadFloat(payload, "s"))
}

// TestConcurrentLifecycle 测试并发创建派发完成
func TestConcurrentLifecycle(t *testing.T) {
	tm := NewTaskManager(logger.New())

	const taskCount = 50
	done := make(chan string, taskCount)
	for i := 0; i < taskCount; i++ {
		go func(n int) {
			task := tm.Create(common.TaskTypeComputation, fmt.Sprintf("result=%d", n), nil)
			if err := tm.Assign(task.ID, fmt.Sprintf("w%d", n%4)); err != nil {
				done <- ""
				return
			}
			if _, err := tm.Complete(task.ID, map[string]any{"success": true}); err != nil {
				done <- ""
				return
			}
			done <- task.ID
		}(i)
	}

	for i := 0; i < taskCount; i++ {
		assert.NotEmpty(t, <-done)
	}

	stats := tm.Stats()
	assert.Equal(t, taskCount, stats.Completed)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 0, stats.Running)
}
