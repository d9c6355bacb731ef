/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-28 10:02:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 18:35:02
 * @FilePath: \go-taskfarm\distributed\common\models.go
 * @Description: 核心数据模型定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package common

import (
	"encoding/json"
	"time"
)

// WorkerInfo Worker 信息，由 Master 持有
// 连接成功时创建，会话丢失时标记 disconnected，从不删除（保留延迟与历史）
type WorkerInfo struct {
	ID              string            `json:"id"` // "ip:port"
	Hostname        string            `json:"hostname"`
	IP              string            `json:"ip"`
	Port            int               `json:"port"`
	ConnectedAt     time.Time         `json:"connected_at"`
	LastHeartbeat   time.Time         `json:"last_heartbeat"`
	Status          WorkerState       `json:"status"`
	Resources       *ResourceSnapshot `json:"resources"`
	LatencyMs       float64           `json:"latency_ms"`        // 心跳往返延迟，0 表示尚未测量
	ActiveTaskCount int               `json:"active_task_count"` // 已分发未完成任务数，永不为负
	Capabilities    []string          `json:"capabilities"`      // READY 消息宣告的能力
}

// Clone 深拷贝（快照后释放锁，供外部消费）
func (w *WorkerInfo) Clone() *WorkerInfo {
	if w == nil {
		return nil
	}
	clone := *w
	if w.Resources != nil {
		res := *w.Resources
		clone.Resources = &res
	}
	clone.Capabilities = append([]string(nil), w.Capabilities...)
	return &clone
}

// ResourceSnapshot Worker 资源快照
// 始终整体替换，不做字段级合并
type ResourceSnapshot struct {
	CPUPercent        float64   `json:"cpu_percent"`
	MemoryPercent     float64   `json:"memory_percent"`
	MemoryTotalMB     float64   `json:"memory_total_mb"`
	MemoryAvailableMB float64   `json:"memory_available_mb"`
	DiskPercent       float64   `json:"disk_percent"`
	DiskFreeGB        float64   `json:"disk_free_gb"`
	BatteryPercent    float64   `json:"battery_percent"` // -1 表示无电池
	BatteryPlugged    bool      `json:"battery_plugged"`
	HasGPU            bool      `json:"has_gpu"`
	GPUInfo           string    `json:"gpu_info"`
	CPUCores          int       `json:"cpu_cores"`
	CPUThreads        int       `json:"cpu_threads"`
	Hostname          string    `json:"hostname"`
	Platform          string    `json:"platform"`
	PlatformVersion   string    `json:"platform_version"`
	SampledAt         time.Time `json:"sampled_at"`
}

// AsMap 转为消息载荷
func (r *ResourceSnapshot) AsMap() map[string]any {
	return structToMap(r)
}

// SnapshotFromMap 从消息载荷还原快照
func SnapshotFromMap(data map[string]any) (*ResourceSnapshot, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var snapshot ResourceSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Task 任务实体，由 TaskManager 独占持有
// WorkerID 仅作回查引用，不代表所有权
type Task struct {
	ID          string         `json:"id"`
	Type        TaskType       `json:"type"`
	Code        string         `json:"code"`
	Data        map[string]any `json:"data"`
	Status      TaskState      `json:"status"`
	WorkerID    string         `json:"worker_id"`
	Result      any            `json:"result"`
	Error       string         `json:"error"`
	Progress    int            `json:"progress"` // 0-100
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   time.Time      `json:"started_at"`   // 零值表示未开始
	CompletedAt time.Time      `json:"completed_at"` // 零值表示未结束
	Output      string         `json:"output"`       // 展示用拼接文本，完成时生成

	// ExecutionTime Worker 上报的沙箱执行耗时（秒），未执行为 0
	ExecutionTime float64 `json:"execution_time,omitempty"`
}

// Clone 深拷贝任务（输入数据浅拷贝一层）
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Data != nil {
		clone.Data = make(map[string]any, len(t.Data))
		for k, v := range t.Data {
			clone.Data[k] = v
		}
	}
	return &clone
}

// structToMap JSON 往返转换，保证载荷键与 json tag 一致
func structToMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	result := make(map[string]any)
	if err := json.Unmarshal(raw, &result); err != nil {
		return map[string]any{}
	}
	return result
}
