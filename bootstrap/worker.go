/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-29 08:40:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-20 10:19:02
 * @FilePath: \go-taskfarm\bootstrap\worker.go
 * @Description: Worker 模式启动器
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-taskfarm/distributed/worker"
	"github.com/kamalyes/go-toolbox/pkg/osx"
	"github.com/kamalyes/go-toolbox/pkg/units"
)

// WorkerOptions Worker 启动选项
type WorkerOptions struct {
	Config    *common.WorkerConfig    // 为 nil 时使用默认配置
	Discovery *common.DiscoveryConfig // 为 nil 时使用默认配置
	MaxMemory string                  // 进程内存阈值,超过后自动停机 (如: 1GB, 512MB)
	Logger    logger.ILogger
}

// RunWorker 运行 Worker 节点
func RunWorker(opts WorkerOptions) error {
	opts.Logger.Info("🤖 启动 Worker 节点...")

	workerCfg := opts.Config
	if workerCfg == nil {
		workerCfg = common.DefaultWorkerConfig()
	}
	discoveryCfg := opts.Discovery
	if discoveryCfg == nil {
		discoveryCfg = common.DefaultDiscoveryConfig()
	}

	w, err := worker.NewWorker(workerCfg, discoveryCfg, opts.Logger)
	if err != nil {
		return fmt.Errorf("创建 Worker 失败: %w", err)
	}

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

	// 启动内存监控（如果配置了阈值）
	if opts.MaxMemory != "" {
		if err := startMemoryMonitor(ctx, opts.MaxMemory, cancel, opts.Logger); err != nil {
			opts.Logger.Warnf("⚠️  %v", err)
		}
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("启动 Worker 失败: %w", err)
	}

	opts.Logger.Info("✅ Worker 节点运行中...")
	opts.Logger.Infof("   Worker ID: %s", w.ID())
	opts.Logger.Infof("   监听端口: %d", w.Port())
	opts.Logger.Infof("   能力标签: %s", strings.Join(workerCfg.Capabilities, ", "))
	opts.Logger.Infof("   执行上限: CPU %d%%, 内存 %dMB, 超时 %s",
		workerCfg.Executor.CPULimitPercent, workerCfg.Executor.MemoryLimitMB, workerCfg.Executor.MaxExecutionTime)
	if discoveryCfg.Enabled {
		opts.Logger.Infof("   发现广播: UDP %d 端口, 每 %s 一次", discoveryCfg.Port, discoveryCfg.BroadcastInterval)
	} else {
		opts.Logger.Info("   发现广播: 已关闭，等待 Master 直连")
	}
	opts.Logger.Info("\n💡 Master 接入后任务会被自动执行")

	// 等待退出，信号与内存监控共用同一条停机路径
	<-ctx.Done()
	if err := w.Stop(); err != nil {
		opts.Logger.Warnf("⚠️  停止 Worker: %v", err)
	}
	opts.Logger.Info("👋 Worker 节点已停止")
	return nil
}

// startMemoryMonitor 启动进程内存监控
func startMemoryMonitor(ctx context.Context, maxMemory string, cancel context.CancelFunc, log logger.ILogger) error {
	threshold, err := units.ParseBytes(maxMemory)
	if err != nil {
		return fmt.Errorf("内存阈值格式错误: %w,将忽略内存监控", err)
	}

	log.Infof("🔍 启动内存监控，阈值: %s (%d MB)", maxMemory, threshold/(1024*1024))

	monitor := osx.NewAdvancedMonitor().
		AddThreshold(osx.LevelWarning, threshold*80/100).
		AddThreshold(osx.LevelCritical, threshold).
		SetMetricType(osx.MetricAlloc).
		SetCheckOnce(false).
		SetMaxHistory(200).
		EnableGrowthCheck(20.0, 30*time.Second).
		OnWarning(func(snapshot osx.Snapshot) {
			log.Warnf("[⚠️  警告] 内存使用: %s / %s (%.1f%%), Goroutines: %d",
				units.FormatBytes(snapshot.Alloc),
				maxMemory,
				float64(snapshot.Alloc)/float64(threshold)*100,
				snapshot.Goroutines)
		}).
		OnCritical(func(snapshot osx.Snapshot) {
			log.Warnf("\n[🚨 严重] 内存使用超过阈值: %s / %s (%.1f%%)",
				units.FormatBytes(snapshot.Alloc),
				maxMemory,
				float64(snapshot.Alloc)/float64(threshold)*100)
			log.Warnf("  GC次数: %d, Goroutines: %d", snapshot.NumGC, snapshot.Goroutines)
			log.Warn("🛑 自动停止节点...")
			cancel()
		}).
		OnGrowthAlert(func(rate osx.GrowthRate, snapshot osx.Snapshot) {
			log.Warnf("[📈 增长告警] 增长率: %.2f%%, 绝对增长: %s, 时间窗口: %v",
				rate.Percentage,
				units.FormatBytes(uint64(rate.Absolute)),
				rate.Duration)
		}).
		OnCheck(func(snapshot osx.Snapshot) {
			log.Debugf("📊 内存监控 - Alloc: %s, Sys: %s, Goroutines: %d, GC: %d",
				units.FormatBytes(snapshot.Alloc),
				units.FormatBytes(snapshot.Sys),
				snapshot.Goroutines,
				snapshot.NumGC)
		})

	go monitor.Start(ctx, 5*time.Second)
	return nil
}
