/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-01 09:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\executor\executor.go
 * @Description: JavaScript 任务沙箱执行器
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-taskfarm/distributed/common"
)

// Result 单次任务执行结果
type Result struct {
	Success       bool    `json:"success"`
	Result        any     `json:"result"`
	Error         string  `json:"error"`
	ExecutionTime float64 `json:"execution_time"` // 秒
	MemoryUsed    float64 `json:"memory_used"`    // MB，执行期间 RSS 峰值增量
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
}

// AsMap 转为 task_result 消息的 result 载荷
func (r *Result) AsMap() map[string]any {
	return map[string]any{
		"success":        r.Success,
		"result":         r.Result,
		"error":          r.Error,
		"execution_time": r.ExecutionTime,
		"memory_used":    r.MemoryUsed,
		"stdout":         r.Stdout,
		"stderr":         r.Stderr,
	}
}

// ProgressFunc 任务进度回调，入参已钳制到 [0,100]
type ProgressFunc func(progress int)

// Executor 任务执行器
// 每次 Execute 构建全新的 goja 虚拟机，任务之间互不可见
type Executor struct {
	config *common.ExecutorConfig
	logger logger.ILogger
	sample sampleFunc // 资源采样，可注入以便测试
}

// New 创建执行器，资源上限收敛到允许区间
func New(cfg *common.ExecutorConfig, log logger.ILogger) *Executor {
	if cfg == nil {
		cfg = common.DefaultExecutorConfig()
	}
	cfg.Normalize()

	if cfg.AdjustPriority {
		applyPriority(cfg.CPULimitPercent, log)
	}

	return &Executor{
		config: cfg,
		logger: log,
		sample: processSample,
	}
}

// Config 返回生效的执行器配置
func (e *Executor) Config() *common.ExecutorConfig {
	return e.config
}

// Execute 在沙箱中执行任务代码
// 结果值取全局变量 result，未赋值时退回脚本最后一个表达式的值；
// 脚本写了 stderr 却没有产出结果时按失败处理
func (e *Executor) Execute(ctx context.Context, code string, data map[string]any, onProgress ProgressFunc) *Result {
	start := time.Now()
	res := &Result{}

	sb := newSandbox(data, onProgress, e.logger)

	guard := newResourceGuard(e.config, e.sample, sb.interrupt, e.logger)
	guard.start()
	defer guard.stop()

	// 超时看门狗：到点打断虚拟机
	execCtx, cancel := context.WithTimeout(ctx, e.config.MaxExecutionTime)
	defer cancel()
	watchdogDone := make(chan struct{})
	go func() {
		select {
		case <-execCtx.Done():
			sb.interrupt("execution interrupted")
		case <-watchdogDone:
		}
	}()

	val, err := sb.vm.RunString(code)
	close(watchdogDone)
	guard.stop()

	res.ExecutionTime = time.Since(start).Seconds()
	res.MemoryUsed = guard.peakDeltaMB()
	res.Stdout = sb.stdoutText()
	res.Stderr = sb.stderrText()

	if err != nil {
		res.Success = false
		res.Error = e.describeError(err, execCtx, guard)
		e.logger.WarnKV("任务执行失败", "error", res.Error, "elapsed", res.ExecutionTime)
		return res
	}

	res.Result = sb.resultValue(val)

	// 有 stderr 且无结果视为失败
	if res.Result == nil && res.Stderr != "" {
		res.Success = false
		res.Error = strings.TrimSpace(res.Stderr)
		return res
	}

	res.Success = true
	return res
}

// describeError 把执行错误翻译成对用户友好的描述
// 内存超限优先判定：越界打断与脚本自身异常可能同时发生
func (e *Executor) describeError(err error, execCtx context.Context, guard *resourceGuard) string {
	var interrupted *goja.InterruptedError
	switch {
	case guard.memoryExceeded():
		return fmt.Sprintf("exceeded memory limit of %dMB", e.config.MemoryLimitMB)
	case errors.As(err, &interrupted):
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return fmt.Sprintf("execution timed out after %s", e.config.MaxExecutionTime)
		}
		return fmt.Sprintf("execution interrupted: %v", interrupted.Value())
	default:
		return err.Error()
	}
}
