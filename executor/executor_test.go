/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-08 09:10:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 20:41:33
 * @FilePath: \go-taskfarm\executor\executor_test.go
 * @Description: 沙箱执行器测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package executor

import (
	"context"
	"testing"
	"time"

	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-taskfarm/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testExecutorConfig 测试用配置：不调整进程优先级，采样周期缩短
func testExecutorConfig() *common.ExecutorConfig {
	return &common.ExecutorConfig{
		CPULimitPercent:  100,
		MemoryLimitMB:    1024,
		MaxExecutionTime: 10 * time.Second,
		SampleInterval:   20 * time.Millisecond,
		AdjustPriority:   false,
	}
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return New(testExecutorConfig(), logger.New())
}

// TestExecuteSimpleResult 测试 result 全局变量作为任务结果
func TestExecuteSimpleResult(t *testing.T) {
	exec := newTestExecutor(t)

	res := exec.Execute(context.Background(), "result = {x: data.n * 2};", map[string]any{"n": 21}, nil)
	require.True(t, res.Success, res.Error)

	m, ok := res.Result.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 42, m["x"])
	assert.Greater(t, res.ExecutionTime, 0.0)
	assert.Empty(t, res.Error)
}

// TestExecuteCompletionFallback 测试未赋值 result 时退回最后表达式的值
func TestExecuteCompletionFallback(t *testing.T) {
	exec := newTestExecutor(t)

	res := exec.Execute(context.Background(), "7 * 6", nil, nil)
	require.True(t, res.Success, res.Error)
	assert.EqualValues(t, 42, res.Result)
}

// TestExecuteExplicitResultWins 测试 result 优先于脚本完成值
func TestExecuteExplicitResultWins(t *testing.T) {
	exec := newTestExecutor(t)

	res := exec.Execute(context.Background(), `result = "explicit"; "completion";`, nil, nil)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "explicit", res.Result)
}

// TestExecuteNoResult 测试无结果脚本正常结束
func TestExecuteNoResult(t *testing.T) {
	exec := newTestExecutor(t)

	res := exec.Execute(context.Background(), "var a = 1;", nil, nil)
	assert.True(t, res.Success, res.Error)
	assert.Nil(t, res.Result)
}

// TestExecuteOutputCapture 测试 stdout/stderr 捕获
func TestExecuteOutputCapture(t *testing.T) {
	exec := newTestExecutor(t)

	code := `
print("line one");
console.log("line", "two");
console.info({a: 1});
console.warn("warned");
console.error("errored");
result = "done";
`
	res := exec.Execute(context.Background(), code, nil, nil)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "line one\nline two\n{\"a\":1}\n", res.Stdout)
	assert.Equal(t, "warned\nerrored\n", res.Stderr)
}

// TestExecuteStderrWithoutResult 测试有 stderr 且无结果按失败处理
func TestExecuteStderrWithoutResult(t *testing.T) {
	exec := newTestExecutor(t)

	res := exec.Execute(context.Background(), `console.error("bad input");`, nil, nil)
	assert.False(t, res.Success)
	assert.Equal(t, "bad input", res.Error)
	assert.Equal(t, "bad input\n", res.Stderr)
}

// TestExecuteScriptError 测试脚本异常被捕获为失败
func TestExecuteScriptError(t *testing.T) {
	exec := newTestExecutor(t)

	res := exec.Execute(context.Background(), `throw new Error("boom");`, nil, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
	assert.Greater(t, res.ExecutionTime, 0.0)
}

// TestExecuteSyntaxError 测试语法错误按失败处理
func TestExecuteSyntaxError(t *testing.T) {
	exec := newTestExecutor(t)

	res := exec.Execute(context.Background(), "var ) = 1;", nil, nil)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

// TestExecuteProgressClamped 测试进度上报钳制到 [0,100]
func TestExecuteProgressClamped(t *testing.T) {
	exec := newTestExecutor(t)

	// 回调在执行协程内同步触发，无需加锁
	var got []int
	code := `report_progress(-10); report_progress(55); report_progress(200); result = 1;`
	res := exec.Execute(context.Background(), code, nil, func(p int) { got = append(got, p) })

	require.True(t, res.Success, res.Error)
	assert.Equal(t, []int{0, 55, 100}, got)
}

// TestExecuteProgressPanicIgnored 测试进度回调 panic 不影响脚本执行
func TestExecuteProgressPanicIgnored(t *testing.T) {
	exec := newTestExecutor(t)

	code := `report_progress(10); result = "ok";`
	res := exec.Execute(context.Background(), code, nil, func(p int) { panic("listener broken") })

	assert.True(t, res.Success, res.Error)
	assert.Equal(t, "ok", res.Result)
}

// TestExecuteTimeout 测试死循环被超时打断
func TestExecuteTimeout(t *testing.T) {
	cfg := testExecutorConfig()
	cfg.MaxExecutionTime = 200 * time.Millisecond
	exec := New(cfg, logger.New())

	start := time.Now()
	res := exec.Execute(context.Background(), "for (;;) {}", nil, nil)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

// TestExecuteSleepInterrupted 测试 time.sleep 阻塞中也能被打断
func TestExecuteSleepInterrupted(t *testing.T) {
	cfg := testExecutorConfig()
	cfg.MaxExecutionTime = 200 * time.Millisecond
	exec := New(cfg, logger.New())

	start := time.Now()
	code := `var time = require("time"); time.sleep(30); result = "never";`
	res := exec.Execute(context.Background(), code, nil, nil)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second, "休眠分片必须观察到打断标记")
}

// TestExecuteContextCanceled 测试外部取消中断执行
func TestExecuteContextCanceled(t *testing.T) {
	exec := newTestExecutor(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := exec.Execute(ctx, "for (;;) {}", nil, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "interrupted")
}

// TestExecuteMemoryLimitInterrupt 测试内存越界打断，采样器可注入
func TestExecuteMemoryLimitInterrupt(t *testing.T) {
	cfg := testExecutorConfig()
	cfg.MemoryLimitMB = 256
	exec := New(cfg, logger.New())
	exec.sample = func() (float64, float64, error) { return 0, 2048, nil }

	res := exec.Execute(context.Background(), "for (;;) {}", nil, nil)
	assert.False(t, res.Success)
	assert.Equal(t, "exceeded memory limit of 256MB", res.Error)
}

// TestExecuteVMIsolation 测试任务之间虚拟机互不可见
func TestExecuteVMIsolation(t *testing.T) {
	exec := newTestExecutor(t)

	first := exec.Execute(context.Background(), "leak = 42; result = 1;", nil, nil)
	require.True(t, first.Success, first.Error)

	second := exec.Execute(context.Background(), `result = typeof leak === "undefined";`, nil, nil)
	require.True(t, second.Success, second.Error)
	assert.Equal(t, true, second.Result)
}

// TestExecuteNilData 测试 data 缺省为空对象
func TestExecuteNilData(t *testing.T) {
	exec := newTestExecutor(t)

	res := exec.Execute(context.Background(), `result = typeof data === "object" && data !== null;`, nil, nil)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, true, res.Result)
}

// TestNewNormalizesConfig 测试配置收敛到允许区间
func TestNewNormalizesConfig(t *testing.T) {
	exec := New(&common.ExecutorConfig{CPULimitPercent: 5, MemoryLimitMB: 64, AdjustPriority: false}, logger.New())

	cfg := exec.Config()
	assert.Equal(t, common.MinCPULimitPercent, cfg.CPULimitPercent)
	assert.Equal(t, common.MinMemoryLimitMB, cfg.MemoryLimitMB)
	assert.Greater(t, cfg.MaxExecutionTime, time.Duration(0))
}

// TestResultAsMap 测试结果转 task_result 载荷
func TestResultAsMap(t *testing.T) {
	res := &Result{
		Success:       true,
		Result:        42,
		ExecutionTime: 1.5,
		Stdout:        "out",
	}

	m := res.AsMap()
	assert.Equal(t, true, m["success"])
	assert.Equal(t, 42, m["result"])
	assert.Equal(t, 1.5, m["execution_time"])
	assert.Equal(t, "out", m["stdout"])
	assert.Equal(t, "", m["error"])
}
