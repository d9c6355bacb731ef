/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-02 10:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\distributed\worker\service.go
 * @Description: Worker 会话消息处理：任务执行、资源应答、心跳回显
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package worker

import (
	"errors"
	"fmt"

	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-taskfarm/protocol"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// readLoop 会话读循环，读失败即拆除会话并继续等待新 Master
func (w *Worker) readLoop(session *masterSession) {
	for {
		msg, err := session.conn.ReadMessage()
		if err != nil {
			reason := "read error"
			switch {
			case errors.Is(err, protocol.ErrConnClosed):
				reason = "connection closed"
			case protocol.IsTimeout(err):
				// Master 心跳静默超过 IOTimeout，视为失联
				reason = "read timeout"
			}
			if w.running.Load() && !session.closed.Load() {
				w.logger.WarnKV("Master session read failed", "reason", reason, "error", err)
			}
			w.clearSession(session, reason)
			return
		}
		w.handleMessage(session, msg)
	}
}

func (w *Worker) handleMessage(session *masterSession, msg *protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeTaskRequest:
		w.handleTaskRequest(msg)
	case protocol.MessageTypeResourceRequest:
		w.handleResourceRequest()
	case protocol.MessageTypeHeartbeat:
		w.handleHeartbeat(msg)
	case protocol.MessageTypeDisconnect:
		w.logger.InfoKV("Master said goodbye", "reason", msg.GetString("reason"))
		w.clearSession(session, "master disconnect")
	default:
		w.logger.WarnKV("Unhandled message type ignored", "type", string(msg.Type))
		w.sendError(fmt.Sprintf("unsupported message type %q", msg.Type), "")
	}
}

// handleTaskRequest 校验载荷后异步执行，不阻塞读循环
func (w *Worker) handleTaskRequest(msg *protocol.Message) {
	taskID := msg.GetString("task_id")
	code := msg.GetString("code")
	if taskID == "" || code == "" {
		w.logger.WarnKV("Malformed task request", "task_id", taskID)
		w.sendError("task request needs task_id and code", taskID)
		return
	}

	taskType := common.ParseTaskType(msg.GetString("type"))
	data := msg.GetMap("data")

	w.activeTasks.Add(1)
	w.logger.InfoKV("Task accepted",
		"task_id", taskID,
		"type", string(taskType),
		"active", w.ActiveTasks())

	syncx.Go().OnPanic(func(r interface{}) {
		w.logger.ErrorKV("Task goroutine panic", "task_id", taskID, "panic", r)
		w.sendError(fmt.Sprintf("task crashed: %v", r), taskID)
	}).Exec(func() {
		defer w.activeTasks.Add(-1)
		w.runTask(taskID, code, data)
	})
}

// runTask 执行任务并回传结果，进度变化实时上报
func (w *Worker) runTask(taskID, code string, data map[string]any) {
	onProgress := func(progress int) {
		w.sendToMaster(protocol.NewMessage(protocol.MessageTypeProgressUpdate, map[string]any{
			"task_id":  taskID,
			"progress": progress,
		}))
	}

	res := w.executor.Execute(w.ctx, code, data, onProgress)

	w.sendToMaster(protocol.NewMessage(protocol.MessageTypeTaskResult, map[string]any{
		"task_id": taskID,
		"result":  res.AsMap(),
	}))

	if res.Success {
		w.logger.InfoKV("Task finished", "task_id", taskID, "elapsed", res.ExecutionTime)
	} else {
		w.logger.WarnKV("Task failed", "task_id", taskID, "error", res.Error)
	}
}

func (w *Worker) handleResourceRequest() {
	snapshot := w.monitor.Snapshot()
	w.sendToMaster(protocol.NewMessage(protocol.MessageTypeResourceData, snapshot.AsMap()))
}

// handleHeartbeat 回显时间戳供 Master 测算链路延迟
func (w *Worker) handleHeartbeat(msg *protocol.Message) {
	payload := map[string]any{
		"active_tasks": w.ActiveTasks(),
	}
	if ts := msg.GetFloat("timestamp"); ts > 0 {
		payload["timestamp"] = ts
	}
	w.sendToMaster(protocol.NewMessage(protocol.MessageTypeHeartbeatResponse, payload))
}

func (w *Worker) sendError(message, taskID string) {
	payload := map[string]any{"message": message}
	if taskID != "" {
		payload["task_id"] = taskID
	}
	w.sendToMaster(protocol.NewMessage(protocol.MessageTypeError, payload))
}
