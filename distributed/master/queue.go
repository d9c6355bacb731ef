/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-01 09:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 18:42:19
 * @FilePath: \go-taskfarm\distributed\master\queue.go
 * @Description: 任务生命周期与 FIFO 派发队列管理
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package master

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// TaskManager 任务管理器
// store 为唯一事实来源；pending 仅保存待派发任务 ID 的 FIFO 顺序。
// 所有写路径都经过全局锁串行化，状态机只负责校验转换合法性。
type TaskManager struct {
	mu      *syncx.RWLock
	pending []string                         // FIFO：待派发任务 ID
	store   *syncx.Map[string, *common.Task] // 全部任务索引 (O(1) 查询)

	// 每个任务一个独立状态机，校验 Pending/Running/Completed/Failed 转换
	stateMachines *syncx.Map[string, *syncx.StateMachine[common.TaskState]]

	logger logger.ILogger
}

// QueueStats 任务队列统计信息（导出结构体）
type QueueStats struct {
	Pending   int `json:"pending"`   // 待派发任务数
	Running   int `json:"running"`   // 运行中任务数
	Completed int `json:"completed"` // 已完成任务数
	Failed    int `json:"failed"`    // 失败任务数
}

// NewTaskManager 创建任务管理器
func NewTaskManager(log logger.ILogger) *TaskManager {
	return &TaskManager{
		mu:            syncx.NewRWLock(),
		pending:       make([]string, 0, 64),
		store:         syncx.NewMap[string, *common.Task](),
		stateMachines: syncx.NewMap[string, *syncx.StateMachine[common.TaskState]](),
		logger:        log,
	}
}

// newTaskStateMachine 为任务创建状态机
func (tm *TaskManager) newTaskStateMachine() *syncx.StateMachine[common.TaskState] {
	// 启用历史记录追踪，最多保留100条历史记录
	sm := syncx.NewStateMachine(common.TaskStatePending, syncx.WithTrackHistory[common.TaskState](100))

	// 配置允许的状态转换；Running -> Pending 对应 Worker 失联后的重排
	sm.AllowTransition(common.TaskStatePending, common.TaskStateRunning)
	sm.AllowTransition(common.TaskStateRunning, common.TaskStateCompleted)
	sm.AllowTransition(common.TaskStateRunning, common.TaskStateFailed)
	sm.AllowTransition(common.TaskStateRunning, common.TaskStatePending)

	return sm
}

// taskStateMachine 获取或创建任务的状态机
func (tm *TaskManager) taskStateMachine(taskID string) *syncx.StateMachine[common.TaskState] {
	if sm, exists := tm.stateMachines.Load(taskID); exists {
		return sm
	}
	actualSM, _ := tm.stateMachines.LoadOrStore(taskID, tm.newTaskStateMachine())
	return actualSM
}

// Create 创建任务并入队等待派发，返回任务副本
func (tm *TaskManager) Create(taskType common.TaskType, code string, data map[string]any) *common.Task {
	task := &common.Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		Code:      code,
		Data:      data,
		Status:    common.TaskStatePending,
		CreatedAt: time.Now(),
	}

	syncx.WithLock(tm.mu, func() {
		tm.taskStateMachine(task.ID)
		tm.store.Store(task.ID, task)
		tm.pending = append(tm.pending, task.ID)
	})

	tm.logger.InfoKV("Task submitted", "task_id", task.ID, "type", task.Type)
	return task.Clone()
}

// Assign 将任务绑定到 Worker 并移出待派发队列
// 重复派发是幂等的：运行中的任务只重绑 WorkerID，不产生新状态
func (tm *TaskManager) Assign(taskID, workerID string) error {
	return syncx.WithLockReturnValue(tm.mu, func() error {
		task, ok := tm.store.Load(taskID)
		if !ok {
			return fmt.Errorf("task %s not found", taskID)
		}

		switch {
		case task.Status == common.TaskStateRunning:
			// 重派发：只允许换绑目标 Worker
			if task.WorkerID != workerID {
				tm.logger.WarnKV("Task rebound to another worker",
					"task_id", taskID, "from", task.WorkerID, "to", workerID)
				task.WorkerID = workerID
			}
			return nil
		case task.Status.IsTerminal():
			return fmt.Errorf("task %s is already %s, cannot assign", taskID, task.Status)
		}

		if err := tm.taskStateMachine(taskID).TransitionTo(common.TaskStateRunning); err != nil {
			return fmt.Errorf("invalid state transition for task %s: %w", taskID, err)
		}

		task.Status = common.TaskStateRunning
		task.WorkerID = workerID
		task.StartedAt = time.Now()
		tm.removeFromPendingLocked(taskID)

		tm.logger.InfoKV("Task assigned", "task_id", taskID, "worker_id", workerID)
		return nil
	})
}

// UpdateProgress 更新任务进度，范围钳制到 [0,100]，返回是否写入
// 未知任务与终态任务的进度上报直接忽略
func (tm *TaskManager) UpdateProgress(taskID string, progress int) bool {
	return syncx.WithLockReturnValue(tm.mu, func() bool {
		task, ok := tm.store.Load(taskID)
		if !ok {
			tm.logger.DebugKV("Progress for unknown task ignored", "task_id", taskID)
			return false
		}
		if task.Status.IsTerminal() {
			tm.logger.DebugKV("Progress for finished task ignored",
				"task_id", taskID, "status", task.Status)
			return false
		}
		task.Progress = clampProgress(progress)
		return true
	})
}

// Complete 记录任务结果并落入终态，finalized 表示本次调用完成了终态转换
// 载荷为 Worker 上报的 result 字段（success/result/error/execution_time/stdout/stderr）
// 重复上报是幂等的：已终态任务直接忽略，finalized 为 false
func (tm *TaskManager) Complete(taskID string, payload map[string]any) (finalized bool, err error) {
	err = syncx.WithLockReturnValue(tm.mu, func() error {
		task, ok := tm.store.Load(taskID)
		if !ok {
			return fmt.Errorf("task %s not found", taskID)
		}
		if task.Status.IsTerminal() {
			tm.logger.WarnKV("Duplicate result ignored", "task_id", taskID, "status", task.Status)
			return nil
		}

		success, _ := payload["success"].(bool)
		target := common.TaskStateCompleted
		if !success {
			target = common.TaskStateFailed
		}
		if err := tm.taskStateMachine(taskID).TransitionTo(target); err != nil {
			return fmt.Errorf("invalid state transition for task %s: %w", taskID, err)
		}

		task.CompletedAt = time.Now()
		task.ExecutionTime = payloadFloat(payload, "execution_time")
		if success {
			task.Status = common.TaskStateCompleted
			task.Result = payload["result"]
			task.Progress = 100
		} else {
			task.Status = common.TaskStateFailed
			task.Error = mathx.IfEmpty(payloadString(payload, "error"), "unknown error")
		}
		task.Output = buildOutput(
			payloadString(payload, "stdout"),
			payloadString(payload, "stderr"),
			formatResultValue(task.Result),
			task.Error,
		)

		if success {
			tm.logger.InfoKV("Task completed",
				"task_id", taskID,
				"duration", task.CompletedAt.Sub(task.StartedAt))
		} else {
			tm.logger.ErrorKV("Task failed", "task_id", taskID, "reason", task.Error)
		}
		finalized = true
		return nil
	})
	return finalized, err
}

// Requeue 将单个任务退回待派发队列（派发失败时回滚用）
func (tm *TaskManager) Requeue(taskID string) error {
	return syncx.WithLockReturnValue(tm.mu, func() error {
		task, ok := tm.store.Load(taskID)
		if !ok {
			return fmt.Errorf("task %s not found", taskID)
		}
		if task.Status.IsTerminal() {
			return fmt.Errorf("task %s is already %s, cannot requeue", taskID, task.Status)
		}
		return tm.requeueLocked(task)
	})
}

// RequeueForWorker 把某个 Worker 名下所有未完成任务退回待派发队列
// 幂等：绑定已被清空的任务不会二次重排；返回被重排的任务 ID
func (tm *TaskManager) RequeueForWorker(workerID string) []string {
	return syncx.WithLockReturnValue(tm.mu, func() []string {
		var affected []*common.Task
		tm.store.Range(func(_ string, task *common.Task) bool {
			if task.WorkerID == workerID && !task.Status.IsTerminal() {
				affected = append(affected, task)
			}
			return true
		})
		// 按创建时间排序，老任务优先重新派发
		sort.Slice(affected, func(i, j int) bool {
			return affected[i].CreatedAt.Before(affected[j].CreatedAt)
		})

		requeued := make([]string, 0, len(affected))
		for _, task := range affected {
			if err := tm.requeueLocked(task); err != nil {
				tm.logger.WarnKV("Requeue skipped", "task_id", task.ID, "error", err)
				continue
			}
			requeued = append(requeued, task.ID)
		}
		if len(requeued) > 0 {
			tm.logger.WarnKV("Tasks requeued after worker loss",
				"worker_id", workerID, "count", len(requeued))
		}
		return requeued
	})
}

// requeueLocked 重置任务到待派发状态，调用方必须持有写锁
func (tm *TaskManager) requeueLocked(task *common.Task) error {
	if task.Status == common.TaskStateRunning {
		if err := tm.taskStateMachine(task.ID).TransitionTo(common.TaskStatePending); err != nil {
			return fmt.Errorf("invalid state transition for task %s: %w", task.ID, err)
		}
	}
	task.Status = common.TaskStatePending
	task.WorkerID = ""
	task.StartedAt = time.Time{}
	task.Progress = 0
	if !tm.inPendingLocked(task.ID) {
		tm.pending = append(tm.pending, task.ID)
	}
	return nil
}

// Get 获取任务副本 (O(1))
func (tm *TaskManager) Get(taskID string) (*common.Task, bool) {
	task := syncx.WithRLockReturnValue(tm.mu, func() *common.Task {
		t, ok := tm.store.Load(taskID)
		if !ok {
			return nil
		}
		return t.Clone()
	})
	return task, task != nil
}

// GetAll 获取所有任务副本，按创建时间排序
func (tm *TaskManager) GetAll() []*common.Task {
	return syncx.WithRLockReturnValue(tm.mu, func() []*common.Task {
		tasks := make([]*common.Task, 0, tm.store.Size())
		tm.store.Range(func(_ string, task *common.Task) bool {
			tasks = append(tasks, task.Clone())
			return true
		})
		sort.Slice(tasks, func(i, j int) bool {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		})
		return tasks
	})
}

// GetByStatus 按状态筛选任务副本，按创建时间排序
func (tm *TaskManager) GetByStatus(status common.TaskState) []*common.Task {
	all := tm.GetAll()
	filtered := make([]*common.Task, 0, len(all))
	for _, task := range all {
		if task.Status == status {
			filtered = append(filtered, task)
		}
	}
	return filtered
}

// NextPending 返回队首待派发任务 ID，队列为空时返回 false
func (tm *TaskManager) NextPending() (string, bool) {
	id := syncx.WithRLockReturnValue(tm.mu, func() string {
		if len(tm.pending) == 0 {
			return ""
		}
		return tm.pending[0]
	})
	return id, id != ""
}

// PendingCount 待派发任务数
func (tm *TaskManager) PendingCount() int {
	return syncx.WithRLockReturnValue(tm.mu, func() int {
		return len(tm.pending)
	})
}

// Size 任务总数（含终态）
func (tm *TaskManager) Size() int {
	return tm.store.Size()
}

// Stats 获取队列统计
func (tm *TaskManager) Stats() *QueueStats {
	return syncx.WithRLockReturnValue(tm.mu, func() *QueueStats {
		stats := &QueueStats{}
		tm.store.Range(func(_ string, task *common.Task) bool {
			switch task.Status {
			case common.TaskStatePending:
				stats.Pending++
			case common.TaskStateRunning:
				stats.Running++
			case common.TaskStateCompleted:
				stats.Completed++
			case common.TaskStateFailed:
				stats.Failed++
			}
			return true
		})
		return stats
	})
}

// Clear 清理所有终态任务及其状态机，返回清理数量
func (tm *TaskManager) Clear() int {
	return syncx.WithLockReturnValue(tm.mu, func() int {
		var finished []string
		tm.store.Range(func(id string, task *common.Task) bool {
			if task.Status.IsTerminal() {
				finished = append(finished, id)
			}
			return true
		})
		for _, id := range finished {
			tm.store.Delete(id)
			tm.stateMachines.Delete(id)
		}
		if len(finished) > 0 {
			tm.logger.InfoKV("Finished tasks cleared", "count", len(finished))
		}
		return len(finished)
	})
}

// inPendingLocked 判断任务是否已在待派发队列，调用方必须持锁
func (tm *TaskManager) inPendingLocked(taskID string) bool {
	for _, id := range tm.pending {
		if id == taskID {
			return true
		}
	}
	return false
}

// removeFromPendingLocked 从待派发队列移除任务，调用方必须持有写锁
func (tm *TaskManager) removeFromPendingLocked(taskID string) {
	for i, id := range tm.pending {
		if id == taskID {
			tm.pending = append(tm.pending[:i], tm.pending[i+1:]...)
			return
		}
	}
}

// clampProgress 进度钳制到 [0,100]
func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// payloadString 从载荷中取字符串字段，缺失或类型不符返回空串
func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// payloadFloat 从载荷中取数值字段，缺失或类型不符返回 0
// JSON 解码后的数值统一为 float64，整数分支兼容手工构造的载荷
func payloadFloat(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// formatResultValue 结果值转展示文本：字符串原样，其余 JSON 序列化
func formatResultValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

// buildOutput 拼接展示文本，仅包含非空段落
// 形如 "STDOUT:\n...\n\nSTDERR:\n...\n\nRESULT:\n...\n\nERROR:\n..."
func buildOutput(stdout, stderr, result, errText string) string {
	var sections []string
	if stdout != "" {
		sections = append(sections, "STDOUT:\n"+stdout)
	}
	if stderr != "" {
		sections = append(sections, "STDERR:\n"+stderr)
	}
	if result != "" {
		sections = append(sections, "RESULT:\n"+result)
	}
	if errText != "" {
		sections = append(sections, "ERROR:\n"+errText)
	}
	return strings.Join(sections, "\n\n")
}
