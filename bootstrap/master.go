/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-29 08:40:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-20 10:18:36
 * @FilePath: \go-taskfarm\bootstrap\master.go
 * @Description: Master 模式启动器
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
	"github.com/kamalyes/go-taskfarm/distributed/discovery"
	"github.com/kamalyes/go-taskfarm/distributed/master"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
)

// MasterOptions Master 启动选项
type MasterOptions struct {
	Config    *common.MasterConfig    // 为 nil 时使用默认配置
	Discovery *common.DiscoveryConfig // 为 nil 时使用默认配置

	// 任务自动提交配置
	AutoSubmit  bool          // 等到足够 Worker 上线后自动提交任务
	Template    string        // 任务模板名
	ScriptFile  string        // 任务脚本文件路径
	TaskType    string        // 任务类型,脚本文件提交时使用
	Data        string        // 任务输入数据 (JSON)
	TaskCount   int           // 提交的任务份数,默认 1
	WaitWorkers int           // 自动提交前等待的 Worker 数量,默认 1
	WaitTimeout time.Duration // 等待 Worker 的超时时间,默认 30s

	StatusInterval time.Duration // 集群状态打印间隔,默认 30s
	Logger         logger.ILogger
}

// RunMaster 运行 Master 节点
func RunMaster(opts MasterOptions) error {
	opts.Logger.Info("🎯 启动 Master 节点...")

	masterCfg := opts.Config
	if masterCfg == nil {
		masterCfg = common.DefaultMasterConfig()
	}
	discoveryCfg := opts.Discovery
	if discoveryCfg == nil {
		discoveryCfg = common.DefaultDiscoveryConfig()
	}

	m, err := master.NewMaster(masterCfg, discoveryCfg, opts.Logger)
	if err != nil {
		return fmt.Errorf("创建 Master 失败: %w", err)
	}

	registerClusterCallbacks(m, opts.Logger)

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

	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("启动 Master 失败: %w", err)
	}

	opts.Logger.Info("✅ Master 节点运行中...")
	opts.Logger.Infof("   调度策略: %s", masterCfg.SelectStrategy)
	opts.Logger.Infof("   心跳间隔: %s, 超时: %s", masterCfg.HeartbeatInterval, masterCfg.HeartbeatTimeout)
	if discoveryCfg.Enabled {
		opts.Logger.Infof("   自动发现: UDP %d 端口监听 Worker 广播", discoveryCfg.Port)
	} else {
		opts.Logger.Info("   自动发现: 已关闭，需手动接入 Worker")
	}
	if !opts.AutoSubmit {
		opts.Logger.Info("\n💡 使用以下参数提交测试任务:")
		opts.Logger.Info("   go-taskfarm -mode master -template fibonacci -count 10")
	}

	go reportClusterStatus(ctx, m, opts.StatusInterval, opts.Logger)

	if opts.AutoSubmit {
		go autoSubmitTasks(ctx, m, masterCfg, opts)
	}

	// 等待退出
	<-ctx.Done()
	if err := m.Stop(); err != nil {
		opts.Logger.Warnf("⚠️  停止 Master: %v", err)
	}
	if report := m.Report(); report.TotalTasks > 0 {
		report.Print()
	}
	opts.Logger.Info("👋 Master 节点已停止")
	return nil
}

// registerClusterCallbacks 注册集群生命周期回调，事件落到日志
func registerClusterCallbacks(m *master.Master, log logger.ILogger) {
	m.SetCallbacks(master.Callbacks{
		OnWorkerDiscovered: func(worker *discovery.DiscoveredWorker) {
			log.Infof("🔭 发现 Worker: %s (%s:%d)", worker.Hostname, worker.IP, worker.Port)
		},
		OnWorkerConnected: func(worker *common.WorkerInfo) {
			log.Infof("🔗 Worker 已连接: %s [%s]", worker.ID, strings.Join(worker.Capabilities, ", "))
		},
		OnWorkerDisconnected: func(workerID string, requeuedTasks []string) {
			if len(requeuedTasks) > 0 {
				log.Warnf("💔 Worker 已断开: %s，%d 个任务重新排队", workerID, len(requeuedTasks))
				return
			}
			log.Warnf("💔 Worker 已断开: %s", workerID)
		},
		OnTaskProgress: func(taskID string, progress int) {
			log.Debugf("📊 任务进度: %s %d%%", taskID, progress)
		},
		OnTaskComplete: func(task *common.Task) {
			if task.Status == common.TaskStateCompleted {
				log.Infof("✅ 任务完成: %s (%s)", task.ID, task.Type)
				return
			}
			log.Warnf("❌ 任务失败: %s (%s): %s", task.ID, task.Type, task.Error)
		},
	})
}

// reportClusterStatus 周期打印集群概况
func reportClusterStatus(ctx context.Context, m *master.Master, interval time.Duration, log logger.ILogger) {
	ticker := time.NewTicker(mathx.IfNotZero(interval, 30*time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := m.Stats()
			log.Infof("📈 集群状态: Worker 在线 %d/%d, 已发现 %d | 任务 待派发 %d, 运行中 %d, 已完成 %d, 失败 %d",
				stats.WorkersConnected, stats.WorkersTotal, stats.Discovered,
				stats.Queue.Pending, stats.Queue.Running, stats.Queue.Completed, stats.Queue.Failed)
		}
	}
}

// autoSubmitTasks 等待 Worker 就绪后批量提交任务
func autoSubmitTasks(ctx context.Context, m *master.Master, masterCfg *common.MasterConfig, opts MasterOptions) {
	waitWorkers := mathx.Max(opts.WaitWorkers, 1)
	waitTimeout := mathx.IfNotZero(opts.WaitTimeout, 30*time.Second)

	opts.Logger.Infof("⏳ 等待至少 %d 个 Worker 上线 (超时 %s)...", waitWorkers, waitTimeout)
	deadline := time.Now().Add(waitTimeout)
	for len(m.GetConnectedWorkers()) < waitWorkers {
		if time.Now().After(deadline) {
			opts.Logger.Warnf("⚠️  等待 Worker 超时，当前在线 %d 个，任务先行入队", len(m.GetConnectedWorkers()))
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}

	code, taskType, data, err := resolveTaskInput(opts.Template, opts.ScriptFile, opts.TaskType, opts.Data)
	if err != nil {
		opts.Logger.Errorf("❌ 任务配置无效: %v", err)
		return
	}

	count := mathx.Max(opts.TaskCount, 1)
	for i := 0; i < count; i++ {
		taskID, err := m.CreateTask(taskType, code, data)
		if err != nil {
			opts.Logger.Errorf("❌ 创建任务失败: %v", err)
			return
		}
		opts.Logger.Infof("📨 任务已提交: %s (%d/%d)", taskID, i+1, count)

		// 自动派发关闭时就地派发一次，失败的留在队列里
		if !masterCfg.AutoDispatch {
			if workerID, err := m.DispatchTask(taskID); err != nil {
				opts.Logger.Warnf("⚠️  任务暂无法派发: %v", err)
			} else {
				opts.Logger.Infof("🚚 任务已派发: %s -> %s", taskID, workerID)
			}
		}
	}
}
