/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-01 09:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 18:51:07
 * @FilePath: \go-taskfarm\distributed\master\service.go
 * @Description: Master 入站消息处理
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package master

import (
	"errors"

	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-taskfarm/protocol"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// readLoop 会话读循环，每条连接一个 goroutine
// 任何读错误（含 30s 静默超时）都视为对端失联
func (m *Master) readLoop(sess *workerSession) {
	for {
		msg, err := sess.conn.ReadMessage()
		if err != nil {
			reason := "read error"
			switch {
			case errors.Is(err, protocol.ErrConnClosed):
				reason = "connection closed"
			case protocol.IsTimeout(err):
				reason = "read timeout"
			}
			if m.running.Load() && !sess.closed.Load() {
				m.logger.WarnKV("Worker session read failed",
					"worker_id", sess.workerID, "error", err)
			}
			m.handleWorkerLoss(sess.workerID, reason)
			return
		}
		m.handleMessage(sess, msg)
	}
}

// handleMessage 按类型路由入站消息，核心处理之后执行协作方钩子
func (m *Master) handleMessage(sess *workerSession, msg *protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeReady:
		m.handleReady(sess, msg)
	case protocol.MessageTypeTaskResult:
		m.handleTaskResult(sess, msg)
	case protocol.MessageTypeResourceData:
		m.handleResourceData(sess, msg)
	case protocol.MessageTypeHeartbeatResponse:
		m.handleHeartbeatResponse(sess, msg)
	case protocol.MessageTypeProgressUpdate:
		m.handleProgressUpdate(sess, msg)
	case protocol.MessageTypeError:
		m.handleWorkerError(sess, msg)
	case protocol.MessageTypeDisconnect:
		m.logger.InfoKV("Worker said goodbye", "worker_id", sess.workerID,
			"reason", msg.GetString("reason"))
		m.handleWorkerLoss(sess.workerID, "peer disconnect")
		return
	default:
		m.logger.WarnKV("Unhandled message type ignored",
			"worker_id", sess.workerID, "type", msg.Type)
	}

	m.invokeHooks(sess.workerID, msg)
}

// handleReady Worker 宣告就绪：补全主机名与能力列表
func (m *Master) handleReady(sess *workerSession, msg *protocol.Message) {
	hostname := msg.GetString("hostname")
	capabilities := toStringSlice(msg.Data["capabilities"])

	if advertised := msg.GetString("worker_id"); advertised != "" && advertised != sess.workerID {
		// 会话 ID 以 Master 侧拨号地址为准
		m.logger.DebugKV("Worker advertised different id",
			"session", sess.workerID, "advertised", advertised)
	}
	if err := m.pool.SetIdentity(sess.workerID, hostname, capabilities); err != nil {
		m.logger.WarnKV("Apply worker identity failed", "worker_id", sess.workerID, "error", err)
		return
	}
	m.logger.InfoKV("Worker ready",
		"worker_id", sess.workerID,
		"hostname", hostname,
		"capabilities", capabilities)
}

// handleTaskResult 任务结果上报：先递减活跃计数，再落终态
func (m *Master) handleTaskResult(sess *workerSession, msg *protocol.Message) {
	taskID := msg.GetString("task_id")
	if taskID == "" {
		m.logger.WarnKV("Task result without task_id ignored", "worker_id", sess.workerID)
		return
	}

	m.pool.DecrementTaskCount(sess.workerID)

	payload := msg.GetMap("result")
	finalized, err := m.tasks.Complete(taskID, payload)
	if err != nil {
		m.logger.WarnKV("Task result rejected", "task_id", taskID, "error", err)
		return
	}
	// 重复上报不再触发记账与回调
	if finalized {
		m.finalizeTask(taskID)
	}
}

// handleResourceData 资源快照上报：整体替换该 Worker 的快照
func (m *Master) handleResourceData(sess *workerSession, msg *protocol.Message) {
	snapshot, err := common.SnapshotFromMap(msg.Data)
	if err != nil {
		m.logger.DebugKV("Resource payload malformed", "worker_id", sess.workerID, "error", err)
		return
	}
	if err := m.pool.UpdateResources(sess.workerID, snapshot); err != nil {
		m.logger.DebugKV("Resource update dropped", "worker_id", sess.workerID, "error", err)
	}
}

// handleHeartbeatResponse 心跳应答：回显时间戳换算往返延迟（毫秒）
func (m *Master) handleHeartbeatResponse(sess *workerSession, msg *protocol.Message) {
	latencyMs := -1.0
	if ts := msg.GetFloat("timestamp"); ts > 0 {
		latencyMs = (protocol.NowUnix() - ts) * 1000.0
		if latencyMs < 0 {
			latencyMs = 0
		}
	}
	if err := m.pool.UpdateHeartbeat(sess.workerID, latencyMs); err != nil {
		m.logger.DebugKV("Heartbeat update dropped", "worker_id", sess.workerID, "error", err)
		return
	}
	if active := msg.GetInt("active_tasks"); active > 0 {
		m.logger.DebugKV("Worker heartbeat", "worker_id", sess.workerID,
			"latency_ms", latencyMs, "active_tasks", active)
	}
}

// handleProgressUpdate 进度上报：钳制写入后转发协作方回调
func (m *Master) handleProgressUpdate(sess *workerSession, msg *protocol.Message) {
	taskID := msg.GetString("task_id")
	if taskID == "" {
		return
	}
	progress := msg.GetInt("progress")
	if !m.tasks.UpdateProgress(taskID, progress) {
		return
	}
	if cb := m.callbacks.OnTaskProgress; cb != nil {
		cb(taskID, clampProgress(progress))
	}
}

// handleWorkerError Worker 侧错误上报；携带 task_id 时同时判任务失败
func (m *Master) handleWorkerError(sess *workerSession, msg *protocol.Message) {
	errMsg := msg.GetString("message")
	m.logger.ErrorKV("Worker reported error", "worker_id", sess.workerID, "message", errMsg)

	taskID := msg.GetString("task_id")
	if taskID == "" {
		return
	}
	finalized, err := m.tasks.Complete(taskID, map[string]any{
		"success": false,
		"error":   errMsg,
	})
	if err != nil {
		m.logger.DebugKV("Error report did not fail task", "task_id", taskID, "error", err)
		return
	}
	if finalized {
		m.finalizeTask(taskID)
	}
}

// invokeHooks 执行协作方注册的钩子，单个钩子 panic 不影响会话
func (m *Master) invokeHooks(workerID string, msg *protocol.Message) {
	handlers := syncx.WithRLockReturnValue(m.handlerMu, func() []HandlerFunc {
		hs := m.handlers[msg.Type]
		if len(hs) == 0 {
			return nil
		}
		out := make([]HandlerFunc, len(hs))
		copy(out, hs)
		return out
	})

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.ErrorKV("Collaborator handler panic",
						"worker_id", workerID, "type", msg.Type, "panic", r)
				}
			}()
			handler(workerID, msg)
		}()
	}
}

// toStringSlice JSON 解码后的能力列表转字符串切片
func toStringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
