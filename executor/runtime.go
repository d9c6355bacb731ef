/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-01 09:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\executor\runtime.go
 * @Description: 沙箱运行时环境：全局对象、输出捕获、进度上报
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// sandbox 单次执行的隔离环境
// 虚拟机为单线程模型，宿主回调均在执行 goroutine 内同步触发，
// 输出缓冲只在 RunString 返回后读取，无需加锁
type sandbox struct {
	vm        *goja.Runtime
	halted    *syncx.Bool // 打断标记，供阻塞型宿主调用（如 time.sleep）提前退出
	stdoutBuf strings.Builder
	stderrBuf strings.Builder
	logger    logger.ILogger
}

// newSandbox 构建全新虚拟机并注入任务全局环境
func newSandbox(data map[string]any, onProgress ProgressFunc, log logger.ILogger) *sandbox {
	sb := &sandbox{
		vm:     goja.New(),
		halted: syncx.NewBool(false),
		logger: log,
	}

	if data == nil {
		data = map[string]any{}
	}
	sb.vm.Set("data", data)

	sb.setupOutput()
	sb.setupProgress(onProgress)
	sb.setupRequire()

	return sb
}

// interrupt 终止当前脚本并唤醒阻塞中的宿主调用
func (sb *sandbox) interrupt(v interface{}) {
	sb.halted.Store(true)
	sb.vm.Interrupt(v)
}

// setupOutput 输出捕获：print/console.log/info 进 stdout，console.warn/error 进 stderr
func (sb *sandbox) setupOutput() {
	sb.vm.Set("print", func(call goja.FunctionCall) goja.Value {
		sb.writeLine(&sb.stdoutBuf, call.Arguments)
		return goja.Undefined()
	})

	console := sb.vm.NewObject()
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		sb.writeLine(&sb.stdoutBuf, call.Arguments)
		return goja.Undefined()
	})
	console.Set("info", func(call goja.FunctionCall) goja.Value {
		sb.writeLine(&sb.stdoutBuf, call.Arguments)
		return goja.Undefined()
	})
	console.Set("warn", func(call goja.FunctionCall) goja.Value {
		sb.writeLine(&sb.stderrBuf, call.Arguments)
		return goja.Undefined()
	})
	console.Set("error", func(call goja.FunctionCall) goja.Value {
		sb.writeLine(&sb.stderrBuf, call.Arguments)
		return goja.Undefined()
	})
	sb.vm.Set("console", console)
}

// setupProgress 注入 report_progress，进度钳制到 [0,100]
// 回调 panic 不得中断脚本执行
func (sb *sandbox) setupProgress(onProgress ProgressFunc) {
	sb.vm.Set("report_progress", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 || onProgress == nil {
			return goja.Undefined()
		}
		progress := int(call.Arguments[0].ToInteger())
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					sb.logger.WarnKV("进度回调 panic，已忽略", "panic", r)
				}
			}()
			onProgress(progress)
		}()
		return goja.Undefined()
	})
}

// setupRequire 注入 require，仅开放白名单模块
func (sb *sandbox) setupRequire() {
	sb.vm.Set("require", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			panic(sb.vm.NewGoError(fmt.Errorf("require needs a module name")))
		}
		name := call.Arguments[0].String()
		module, ok := sb.loadModule(name)
		if !ok {
			panic(sb.vm.NewGoError(fmt.Errorf("module %q is not available in the sandbox", name)))
		}
		return module
	})
}

// writeLine 参数格式化后追加为一行
func (sb *sandbox) writeLine(buf *strings.Builder, args []goja.Value) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = formatValue(arg)
	}
	buf.WriteString(strings.Join(parts, " "))
	buf.WriteByte('\n')
}

// resultValue 结果取值：全局 result 优先，其次脚本完成值
func (sb *sandbox) resultValue(completion goja.Value) any {
	if rv := sb.vm.Get("result"); rv != nil && !goja.IsUndefined(rv) && !goja.IsNull(rv) {
		return rv.Export()
	}
	if completion != nil && !goja.IsUndefined(completion) && !goja.IsNull(completion) {
		return completion.Export()
	}
	return nil
}

func (sb *sandbox) stdoutText() string {
	return sb.stdoutBuf.String()
}

func (sb *sandbox) stderrText() string {
	return sb.stderrBuf.String()
}

// formatValue JS 值转展示字符串，对象与数组走 JSON
func formatValue(val goja.Value) string {
	if val == nil || goja.IsUndefined(val) {
		return "undefined"
	}
	if goja.IsNull(val) {
		return "null"
	}

	exported := val.Export()
	switch v := exported.(type) {
	case string:
		return v
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}
