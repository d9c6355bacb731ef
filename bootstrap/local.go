/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-29 08:40:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-20 10:19:28
 * @FilePath: \go-taskfarm\bootstrap\local.go
 * @Description: 本地执行模式启动器
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-taskfarm/executor"
)

// LocalOptions 本地执行选项
type LocalOptions struct {
	Template   string                 // 任务模板名
	ScriptFile string                 // 任务脚本文件路径
	TaskType   string                 // 任务类型,脚本文件时使用
	Data       string                 // 任务输入数据 (JSON)
	Executor   *common.ExecutorConfig // 为 nil 时使用默认配置
	Logger     logger.ILogger
}

// RunLocal 本地执行单个任务，不经过网络
// 执行环境与 Worker 完全一致，用于任务脚本的开发调试
func RunLocal(opts LocalOptions) error {
	opts.Logger.Info("🧪 本地执行任务...")

	code, taskType, data, err := resolveTaskInput(opts.Template, opts.ScriptFile, opts.TaskType, opts.Data)
	if err != nil {
		return err
	}

	execCfg := opts.Executor
	if execCfg == nil {
		execCfg = common.DefaultExecutorConfig()
	}
	exec := executor.New(execCfg, opts.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		opts.Logger.Warn("\n\n⚠️  收到中断信号，正在停止...")
		cancel()
	}()

	cfg := exec.Config()
	opts.Logger.Infof("   任务类型: %s", taskType)
	opts.Logger.Infof("   执行上限: CPU %d%%, 内存 %dMB, 超时 %s",
		cfg.CPULimitPercent, cfg.MemoryLimitMB, cfg.MaxExecutionTime)

	res := exec.Execute(ctx, code, data, func(progress int) {
		opts.Logger.Infof("📊 进度: %d%%", progress)
	})

	printLocalResult(res, opts.Logger)
	if !res.Success {
		return fmt.Errorf("任务执行失败: %s", res.Error)
	}
	return nil
}

// resolveTaskInput 解析任务代码与输入数据
// 模板与脚本文件二选一，模板自带示例数据兜底
func resolveTaskInput(template, scriptFile, taskType, dataJSON string) (string, common.TaskType, map[string]any, error) {
	var code string
	var typ common.TaskType
	var data map[string]any

	switch {
	case template != "":
		tpl, ok := executor.LookupTemplate(template)
		if !ok {
			return "", "", nil, fmt.Errorf("未知的任务模板: %s (使用 'go-taskfarm templates' 查看可用模板)", template)
		}
		code = tpl.Code
		typ = tpl.Type
		data = tpl.SampleData
	case scriptFile != "":
		raw, err := os.ReadFile(scriptFile)
		if err != nil {
			return "", "", nil, fmt.Errorf("读取任务脚本失败: %w", err)
		}
		code = string(raw)
		typ = common.ParseTaskType(taskType)
	default:
		return "", "", nil, fmt.Errorf("必须提供 -template 或 -script")
	}

	// 命令行数据优先于模板示例数据
	if dataJSON != "" {
		data = nil
		if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
			return "", "", nil, fmt.Errorf("解析任务数据失败: %w", err)
		}
	}

	return code, typ, data, nil
}

// printLocalResult 打印执行结果
func printLocalResult(res *executor.Result, log logger.ILogger) {
	if res.Success {
		log.Info("✅ 任务执行成功")
	} else {
		log.Errorf("❌ 任务执行失败: %s", res.Error)
	}
	log.Infof("   耗时: %.3fs, 内存峰值: %.2fMB", res.ExecutionTime, res.MemoryUsed)

	if res.Stdout != "" {
		log.Info("\nSTDOUT:\n" + strings.TrimRight(res.Stdout, "\n"))
	}
	if res.Stderr != "" {
		log.Warn("\nSTDERR:\n" + strings.TrimRight(res.Stderr, "\n"))
	}
	if res.Result != nil {
		log.Info("\nRESULT:\n" + formatResultJSON(res.Result))
	}
}

// formatResultJSON 结果值转展示文本：字符串原样，其余 JSON 缩进序列化
func formatResultJSON(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
