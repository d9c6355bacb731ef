/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-03 10:20:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 19:05:11
 * @FilePath: \go-taskfarm\protocol\message_test.go
 * @Description: 消息信封编解码测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMessage 测试消息创建
func TestNewMessage(t *testing.T) {
	msg := NewMessage(MessageTypeHeartbeat, map[string]any{"seq": 1})

	assert.Equal(t, MessageTypeHeartbeat, msg.Type)
	assert.Equal(t, 1, msg.GetInt("seq"))
	assert.Greater(t, msg.Timestamp, 0.0)
}

// TestNewMessageNilData 测试 nil 载荷补空 map
func TestNewMessageNilData(t *testing.T) {
	msg := NewMessage(MessageTypeResourceRequest, nil)

	assert.NotNil(t, msg.Data)
	assert.Equal(t, 0, len(msg.Data))
}

// TestEncodeDecodeRoundTrip 测试编解码往返
func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := NewMessage(MessageTypeTaskRequest, map[string]any{
		"task_id": "task-1",
		"type":    "computation",
		"code":    "result={'x':data['n']*2}",
		"data":    map[string]any{"n": 21},
	})

	line, err := msg.Encode()
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(line, []byte("\n")), "编码结果必须以换行符结尾")
	assert.Equal(t, 1, bytes.Count(line, []byte("\n")), "一条消息只占一行")

	decoded, err := Decode(line)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeTaskRequest, decoded.Type)
	assert.Equal(t, "task-1", decoded.GetString("task_id"))
	assert.Equal(t, "result={'x':data['n']*2}", decoded.GetString("code"))
	assert.InDelta(t, msg.Timestamp, decoded.Timestamp, 1e-6)

	// JSON 数值统一为 float64，内嵌对象仍可访问
	data := decoded.GetMap("data")
	require.NotNil(t, data)
	assert.Equal(t, float64(21), data["n"])
}

// TestDecodeEmptyLine 测试空行报错
func TestDecodeEmptyLine(t *testing.T) {
	_, err := Decode([]byte(""))
	assert.Error(t, err)

	_, err = Decode([]byte("   \n"))
	assert.Error(t, err)
}

// TestDecodeMalformedJSON 测试非法 JSON 报错
func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode([]byte("{not json}"))
	assert.Error(t, err)
}

// TestDecodeMissingType 测试缺失类型字段报错
func TestDecodeMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"data":{"a":1},"timestamp":1.5}`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "type")
}

// TestDecodeNilDataNormalized 测试缺失 data 字段补空 map
func TestDecodeNilDataNormalized(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"heartbeat","timestamp":1.5}`))
	require.NoError(t, err)
	assert.NotNil(t, msg.Data)
	assert.Equal(t, 1.5, msg.Timestamp)
}

// TestDecodeUnknownTypeTolerated 测试词汇表外类型解码不报错
func TestDecodeUnknownTypeTolerated(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"future_feature","data":{},"timestamp":1}`))
	require.NoError(t, err)
	assert.False(t, msg.Type.IsKnown())
	assert.True(t, MessageTypeTaskResult.IsKnown())
}

// TestAccessorTypeMismatch 测试访问器对缺失与类型不符字段的容错
func TestAccessorTypeMismatch(t *testing.T) {
	msg := NewMessage(MessageTypeError, map[string]any{
		"message": "boom",
		"level":   3,
		"fatal":   true,
	})

	assert.Equal(t, "boom", msg.GetString("message"))
	assert.Equal(t, "", msg.GetString("level"))   // 数值按字符串取为空
	assert.Equal(t, "", msg.GetString("missing")) // 缺失字段为空
	assert.Equal(t, 3, msg.GetInt("level"))
	assert.Equal(t, 0.0, msg.GetFloat("message"))
	assert.True(t, msg.GetBool("fatal"))
	assert.False(t, msg.GetBool("message"))
	assert.Nil(t, msg.GetMap("message"))
}

// TestGetFloatNumericVariants 测试数值访问器兼容多种来源类型
func TestGetFloatNumericVariants(t *testing.T) {
	msg := NewMessage(MessageTypeProgressUpdate, map[string]any{
		"a": float64(1.5),
		"b": float32(2.5),
		"c": int(3),
		"d": int64(4),
	})

	assert.Equal(t, 1.5, msg.GetFloat("a"))
	assert.Equal(t, 2.5, msg.GetFloat("b"))
	assert.Equal(t, 3.0, msg.GetFloat("c"))
	assert.Equal(t, 4.0, msg.GetFloat("d"))
	assert.Equal(t, 0.0, msg.GetFloat("missing"))
}
