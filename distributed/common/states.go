/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-28 10:02:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-15 22:31:08
 * @FilePath: \go-taskfarm\distributed\common\states.go
 * @Description: 任务农场状态枚举定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package common

import "strings"

// WorkerState Worker 连接状态 | EN Worker connection state
type WorkerState string

const (
	WorkerStateConnected    WorkerState = "connected"    // 已连接 | EN Connected
	WorkerStateDisconnected WorkerState = "disconnected" // 已断开（记录保留） | EN Disconnected (record kept)
)

// TaskState 任务状态 | EN Task State
type TaskState string

const (
	TaskStatePending   TaskState = "pending"   // 待分发 | EN Pending
	TaskStateRunning   TaskState = "running"   // 执行中 | EN Running
	TaskStateCompleted TaskState = "completed" // 已完成 | EN Completed
	TaskStateFailed    TaskState = "failed"    // 执行失败 | EN Failed
)

// IsTerminal 是否终态（终态之后忽略迟到的进度更新）
func (s TaskState) IsTerminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed
}

// TaskType 任务类型，取值沿用对外展示名称
type TaskType string

const (
	TaskTypeCustom          TaskType = "Custom Task"
	TaskTypeComputation     TaskType = "Computation"
	TaskTypeImageProcessing TaskType = "Image Processing"
	TaskTypeDataAnalysis    TaskType = "Data Analysis"
	TaskTypeSystemCheck     TaskType = "System Check"
	TaskTypeNetworkTest     TaskType = "Network Test"
	TaskTypeTextAnalysis    TaskType = "Text Analysis"
	TaskTypeMachineLearning TaskType = "Machine Learning"
	TaskTypeAPIRequest      TaskType = "API Request"
)

// RequiresGPU 机器学习类任务在智能选择时要求 GPU 能力
func (t TaskType) RequiresGPU() bool {
	return t == TaskTypeMachineLearning
}

// ParseTaskType 宽松解析任务类型，未识别时回退为自定义任务
func ParseTaskType(s string) TaskType {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for _, t := range []TaskType{
		TaskTypeCustom, TaskTypeComputation, TaskTypeImageProcessing,
		TaskTypeDataAnalysis, TaskTypeSystemCheck, TaskTypeNetworkTest,
		TaskTypeTextAnalysis, TaskTypeMachineLearning, TaskTypeAPIRequest,
	} {
		if strings.ToLower(string(t)) == normalized {
			return t
		}
	}
	return TaskTypeCustom
}
