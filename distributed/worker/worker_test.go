/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-08 11:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 21:12:46
 * @FilePath: \go-taskfarm\distributed\worker\worker_test.go
 * @Description: Worker 节点回环会话测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package worker

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-taskfarm/logger"
	"github.com/kamalyes/go-taskfarm/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestWorker 启动一个回环 Worker，端口由系统分配，不启用 UDP 发现
func newTestWorker(t *testing.T) *Worker {
	t.Helper()

	cfg := &common.WorkerConfig{
		ListenIP:     "127.0.0.1",
		ListenPort:   0,
		AdvertiseIP:  "127.0.0.1",
		Capabilities: []string{"general"},
		IOTimeout:    5 * time.Second,
		Executor: &common.ExecutorConfig{
			CPULimitPercent:  100,
			MemoryLimitMB:    1024,
			MaxExecutionTime: 10 * time.Second,
			SampleInterval:   20 * time.Millisecond,
			AdjustPriority:   false,
		},
	}

	w, err := NewWorker(cfg, nil, logger.New())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Stop() })
	return w
}

// dialWorker 模拟 Master 侧接入 Worker
func dialWorker(t *testing.T, w *Worker) *protocol.Conn {
	t.Helper()

	raw, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", w.Port()))
	require.NoError(t, err)

	conn := protocol.NewConn(raw, protocol.ConnOptions{
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		Logger:       logger.New(),
	})
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil 读取直到出现目标类型的消息，其余消息跳过
func readUntil(t *testing.T, conn *protocol.Conn, want protocol.MessageType) *protocol.Message {
	t.Helper()
	for i := 0; i < 50; i++ {
		msg, err := conn.ReadMessage()
		require.NoError(t, err)
		if msg.Type == want {
			return msg
		}
	}
	t.Fatalf("no %s message received", want)
	return nil
}

// TestWorkerReadyOnConnect 测试 Master 接入后立即收到 READY
func TestWorkerReadyOnConnect(t *testing.T) {
	w := newTestWorker(t)
	conn := dialWorker(t, w)

	ready, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypeReady, ready.Type)
	assert.Equal(t, w.ID(), ready.GetString("worker_id"))
	assert.NotEmpty(t, ready.GetString("hostname"))

	caps, ok := ready.Data["capabilities"].([]any)
	require.True(t, ok)
	assert.Contains(t, caps, "general")

	assert.True(t, w.Connected())
}

// TestWorkerExecutesTask 测试任务派发到结果回传的闭环
func TestWorkerExecutesTask(t *testing.T) {
	w := newTestWorker(t)
	conn := dialWorker(t, w)
	readUntil(t, conn, protocol.MessageTypeReady)

	conn.Send(protocol.NewMessage(protocol.MessageTypeTaskRequest, map[string]any{
		"task_id": "t1",
		"type":    "Computation",
		"code":    "result = {x: data.n * 2};",
		"data":    map[string]any{"n": 21},
	}))

	msg := readUntil(t, conn, protocol.MessageTypeTaskResult)
	assert.Equal(t, "t1", msg.GetString("task_id"))

	payload := msg.GetMap("result")
	require.NotNil(t, payload)
	assert.Equal(t, true, payload["success"])
	assert.Greater(t, payload["execution_time"].(float64), 0.0)

	// JSON 往返后数值统一为 float64
	resultMap, ok := payload["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(42), resultMap["x"])
}

// TestWorkerReportsProgress 测试进度在结果之前按序上报
func TestWorkerReportsProgress(t *testing.T) {
	w := newTestWorker(t)
	conn := dialWorker(t, w)
	readUntil(t, conn, protocol.MessageTypeReady)

	conn.Send(protocol.NewMessage(protocol.MessageTypeTaskRequest, map[string]any{
		"task_id": "t2",
		"type":    "Computation",
		"code":    "report_progress(25); report_progress(75); result = 1;",
	}))

	var progress []int
	var result *protocol.Message
	for result == nil {
		msg, err := conn.ReadMessage()
		require.NoError(t, err)
		switch msg.Type {
		case protocol.MessageTypeProgressUpdate:
			assert.Equal(t, "t2", msg.GetString("task_id"))
			progress = append(progress, msg.GetInt("progress"))
		case protocol.MessageTypeTaskResult:
			result = msg
		}
	}

	assert.Equal(t, []int{25, 75}, progress)
	assert.Equal(t, true, result.GetMap("result")["success"])
}

// TestWorkerTaskFailureReported 测试脚本异常以失败结果回传
func TestWorkerTaskFailureReported(t *testing.T) {
	w := newTestWorker(t)
	conn := dialWorker(t, w)
	readUntil(t, conn, protocol.MessageTypeReady)

	conn.Send(protocol.NewMessage(protocol.MessageTypeTaskRequest, map[string]any{
		"task_id": "t3",
		"type":    "Computation",
		"code":    `throw new Error("exploded");`,
	}))

	msg := readUntil(t, conn, protocol.MessageTypeTaskResult)
	payload := msg.GetMap("result")
	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["error"].(string), "exploded")
}

// TestWorkerMalformedTaskRequest 测试缺字段的任务请求返回错误
func TestWorkerMalformedTaskRequest(t *testing.T) {
	w := newTestWorker(t)
	conn := dialWorker(t, w)
	readUntil(t, conn, protocol.MessageTypeReady)

	conn.Send(protocol.NewMessage(protocol.MessageTypeTaskRequest, map[string]any{
		"task_id": "t4",
	}))

	msg := readUntil(t, conn, protocol.MessageTypeError)
	assert.Contains(t, msg.GetString("message"), "task_id and code")
	assert.Equal(t, "t4", msg.GetString("task_id"))
	assert.Equal(t, 0, w.ActiveTasks(), "未接受的任务不计入在执行数")
}

// TestWorkerHeartbeatEcho 测试心跳回显时间戳
func TestWorkerHeartbeatEcho(t *testing.T) {
	w := newTestWorker(t)
	conn := dialWorker(t, w)
	readUntil(t, conn, protocol.MessageTypeReady)

	conn.Send(protocol.NewMessage(protocol.MessageTypeHeartbeat, map[string]any{
		"timestamp": 123.456,
	}))

	msg := readUntil(t, conn, protocol.MessageTypeHeartbeatResponse)
	assert.Equal(t, 123.456, msg.GetFloat("timestamp"))
	assert.Equal(t, 0, msg.GetInt("active_tasks"))
}

// TestWorkerResourceRequest 测试资源快照应答
func TestWorkerResourceRequest(t *testing.T) {
	w := newTestWorker(t)
	conn := dialWorker(t, w)
	readUntil(t, conn, protocol.MessageTypeReady)

	conn.Send(protocol.NewMessage(protocol.MessageTypeResourceRequest, nil))

	msg := readUntil(t, conn, protocol.MessageTypeResourceData)
	snapshot, err := common.SnapshotFromMap(msg.Data)
	require.NoError(t, err)
	assert.NotEmpty(t, snapshot.Hostname)
	assert.GreaterOrEqual(t, snapshot.MemoryPercent, 0.0)
	assert.False(t, snapshot.SampledAt.IsZero())
}

// TestWorkerUnknownMessageType 测试未支持的消息类型回报错误
func TestWorkerUnknownMessageType(t *testing.T) {
	w := newTestWorker(t)
	conn := dialWorker(t, w)
	readUntil(t, conn, protocol.MessageTypeReady)

	conn.Send(protocol.NewMessage(protocol.MessageType("bogus_type"), nil))

	msg := readUntil(t, conn, protocol.MessageTypeError)
	assert.Contains(t, msg.GetString("message"), "unsupported message type")
}

// TestWorkerSessionReplaced 测试新 Master 接入替换旧会话
func TestWorkerSessionReplaced(t *testing.T) {
	w := newTestWorker(t)

	first := dialWorker(t, w)
	readUntil(t, first, protocol.MessageTypeReady)

	second := dialWorker(t, w)
	readUntil(t, second, protocol.MessageTypeReady)

	// 旧会话在新 READY 发出前已被关闭
	_, err := first.ReadMessage()
	assert.Error(t, err)
	assert.True(t, w.Connected())

	// 新会话工作正常
	second.Send(protocol.NewMessage(protocol.MessageTypeHeartbeat, nil))
	msg := readUntil(t, second, protocol.MessageTypeHeartbeatResponse)
	assert.NotNil(t, msg)
}

// TestWorkerSurvivesMasterLoss 测试 Master 掉线后继续接受新接入
func TestWorkerSurvivesMasterLoss(t *testing.T) {
	w := newTestWorker(t)

	first := dialWorker(t, w)
	readUntil(t, first, protocol.MessageTypeReady)
	first.Close()

	require.Eventually(t, func() bool { return !w.Connected() },
		3*time.Second, 20*time.Millisecond, "掉线会话未被摘除")

	second := dialWorker(t, w)
	ready := readUntil(t, second, protocol.MessageTypeReady)
	assert.Equal(t, w.ID(), ready.GetString("worker_id"))
	assert.True(t, w.Connected())
}

// TestWorkerMasterDisconnectMessage 测试 Master 主动道别
func TestWorkerMasterDisconnectMessage(t *testing.T) {
	w := newTestWorker(t)
	conn := dialWorker(t, w)
	readUntil(t, conn, protocol.MessageTypeReady)

	conn.Send(protocol.NewMessage(protocol.MessageTypeDisconnect, map[string]any{
		"reason": "master shutdown",
	}))

	require.Eventually(t, func() bool { return !w.Connected() },
		3*time.Second, 20*time.Millisecond)
}

// TestWorkerStopSendsGoodbye 测试停止时向 Master 道别
func TestWorkerStopSendsGoodbye(t *testing.T) {
	w := newTestWorker(t)
	conn := dialWorker(t, w)
	readUntil(t, conn, protocol.MessageTypeReady)

	require.NoError(t, w.Stop())

	msg := readUntil(t, conn, protocol.MessageTypeDisconnect)
	assert.Equal(t, "worker shutdown", msg.GetString("reason"))
}

// TestWorkerActiveTasksGauge 测试在执行任务计数
func TestWorkerActiveTasksGauge(t *testing.T) {
	w := newTestWorker(t)
	conn := dialWorker(t, w)
	readUntil(t, conn, protocol.MessageTypeReady)

	conn.Send(protocol.NewMessage(protocol.MessageTypeTaskRequest, map[string]any{
		"task_id": "slow",
		"type":    "Computation",
		"code":    `var time = require("time"); time.sleep(0.4); result = 1;`,
	}))

	require.Eventually(t, func() bool { return w.ActiveTasks() == 1 },
		2*time.Second, 10*time.Millisecond, "任务开始后计数应为 1")

	readUntil(t, conn, protocol.MessageTypeTaskResult)
	require.Eventually(t, func() bool { return w.ActiveTasks() == 0 },
		2*time.Second, 10*time.Millisecond, "任务结束后计数应归零")
}

// TestWorkerLifecycleErrors 测试启停状态约束
func TestWorkerLifecycleErrors(t *testing.T) {
	cfg := &common.WorkerConfig{
		ListenIP:    "127.0.0.1",
		ListenPort:  0,
		AdvertiseIP: "127.0.0.1",
		IOTimeout:   time.Second,
		Executor:    common.DefaultExecutorConfig(),
	}
	w, err := NewWorker(cfg, nil, logger.New())
	require.NoError(t, err)

	assert.Error(t, w.Stop(), "未启动不可停止")

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "重复启动报错")
	assert.NotZero(t, w.Port())

	require.NoError(t, w.Stop())
	assert.Error(t, w.Stop(), "重复停止报错")
}

// TestNewWorkerNilConfig 测试空配置被拒绝
func TestNewWorkerNilConfig(t *testing.T) {
	_, err := NewWorker(nil, nil, logger.New())
	assert.Error(t, err)
}
