/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-29 08:40:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-18 20:17:33
 * @FilePath: \go-taskfarm\protocol\message.go
 * @Description: 消息信封与类型词汇表，一行一个 JSON 对象（NDJSON）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MessageType 消息类型，封闭词汇表
type MessageType string

const (
	// Master → Worker
	MessageTypeTaskRequest     MessageType = "task_request"     // 分发任务
	MessageTypeResourceRequest MessageType = "resource_request" // 请求资源快照
	MessageTypeHeartbeat       MessageType = "heartbeat"        // 心跳探测
	MessageTypeDisconnect      MessageType = "disconnect"       // 主动断开

	// Worker → Master
	MessageTypeTaskResult        MessageType = "task_result"        // 任务执行结果
	MessageTypeResourceData      MessageType = "resource_data"      // 资源快照
	MessageTypeHeartbeatResponse MessageType = "heartbeat_response" // 心跳应答（回显时间戳）
	MessageTypeReady             MessageType = "ready"              // 会话就绪，宣告能力
	MessageTypeError             MessageType = "error"              // Worker 侧错误上报
	MessageTypeProgressUpdate    MessageType = "progress_update"    // 任务进度

	// UDP 发现
	MessageTypeWorkerDiscovery  MessageType = "worker_discovery"   // Worker 周期广播
	MessageTypeMasterProbe      MessageType = "master_probe"       // Master 广播探测
	MessageTypeWorkerProbeReply MessageType = "worker_probe_reply" // Worker 单播应答
)

// knownTypes 已注册的消息类型集合
var knownTypes = map[MessageType]struct{}{
	MessageTypeTaskRequest:       {},
	MessageTypeResourceRequest:   {},
	MessageTypeHeartbeat:         {},
	MessageTypeDisconnect:        {},
	MessageTypeTaskResult:        {},
	MessageTypeResourceData:      {},
	MessageTypeHeartbeatResponse: {},
	MessageTypeReady:             {},
	MessageTypeError:             {},
	MessageTypeProgressUpdate:    {},
	MessageTypeWorkerDiscovery:   {},
	MessageTypeMasterProbe:       {},
	MessageTypeWorkerProbeReply:  {},
}

// IsKnown 是否为词汇表内类型（未知类型只忽略不报错）
func (t MessageType) IsKnown() bool {
	_, ok := knownTypes[t]
	return ok
}

// Message 消息信封，发送后不可变
type Message struct {
	Type      MessageType    `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp float64        `json:"timestamp"` // Unix 秒，小数部分为亚秒
}

// NewMessage 创建带当前时间戳的消息
func NewMessage(msgType MessageType, data map[string]any) *Message {
	if data == nil {
		data = map[string]any{}
	}
	return &Message{
		Type:      msgType,
		Data:      data,
		Timestamp: NowUnix(),
	}
}

// NowUnix 当前 Unix 时间（浮点秒）
func NowUnix() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// Encode 序列化为一行 NDJSON（含结尾换行符）
func (m *Message) Encode() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message %s: %w", m.Type, err)
	}
	return append(raw, '\n'), nil
}

// Decode 从单行字节解析消息，空行与缺失类型视为错误
func Decode(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("empty message line")
	}
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("decode message line: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message missing type field")
	}
	if msg.Data == nil {
		msg.Data = map[string]any{}
	}
	return &msg, nil
}

// GetString 读取载荷字符串字段，缺失或类型不符返回空串
func (m *Message) GetString(key string) string {
	if v, ok := m.Data[key].(string); ok {
		return v
	}
	return ""
}

// GetFloat 读取载荷数值字段，吸收 JSON 数值统一为 float64 的特性
func (m *Message) GetFloat(key string) float64 {
	switch v := m.Data[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

// GetInt 读取载荷整数字段
func (m *Message) GetInt(key string) int {
	return int(m.GetFloat(key))
}

// GetBool 读取载荷布尔字段
func (m *Message) GetBool(key string) bool {
	if v, ok := m.Data[key].(bool); ok {
		return v
	}
	return false
}

// GetMap 读取载荷内嵌对象字段，缺失返回 nil
func (m *Message) GetMap(key string) map[string]any {
	if v, ok := m.Data[key].(map[string]any); ok {
		return v
	}
	return nil
}
