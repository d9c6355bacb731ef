/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-01 09:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\executor\guard.go
 * @Description: 执行期资源看护：CPU 软限退让、内存硬限打断、峰值统计
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package executor

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
	"github.com/shirou/gopsutil/v3/process"
)

// cpuBackoffStep CPU 软限退让步长，每超出 1 个百分点多让出 10ms
const cpuBackoffStep = 10 * time.Millisecond

// sampleFunc 进程资源采样：CPU 占用（%）与常驻内存（MB），可注入以便测试
type sampleFunc func() (cpuPercent float64, rssMB float64, err error)

var (
	procSelfOnce sync.Once
	procSelf     *process.Process
	procSelfErr  error
)

// currentProcess 本进程句柄，Percent 基于上次调用的差值计算，必须复用同一实例
func currentProcess() (*process.Process, error) {
	procSelfOnce.Do(func() {
		procSelf, procSelfErr = process.NewProcess(int32(os.Getpid()))
	})
	return procSelf, procSelfErr
}

// processSample 默认采样实现，读取本进程的 CPU 与 RSS
func processSample() (float64, float64, error) {
	proc, err := currentProcess()
	if err != nil {
		return 0, 0, err
	}
	cpuPct, err := proc.Percent(0)
	if err != nil {
		return 0, 0, err
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	return cpuPct, float64(memInfo.RSS) / 1024 / 1024, nil
}

// resourceGuard 单次执行的资源看护
// CPU 超限只在看护协程内退让降速，内存超限打断虚拟机并置位标记
type resourceGuard struct {
	cfg       *common.ExecutorConfig
	sample    sampleFunc
	interrupt func(v interface{})
	logger    logger.ILogger

	memExceeded *syncx.Bool
	stopped     *syncx.Bool
	stopCh      chan struct{}

	mu         sync.Mutex
	baselineMB float64
	peakMB     float64
}

func newResourceGuard(cfg *common.ExecutorConfig, sample sampleFunc, interrupt func(v interface{}), log logger.ILogger) *resourceGuard {
	return &resourceGuard{
		cfg:         cfg,
		sample:      sample,
		interrupt:   interrupt,
		logger:      log,
		memExceeded: syncx.NewBool(false),
		stopped:     syncx.NewBool(false),
		stopCh:      make(chan struct{}),
	}
}

// start 记录内存基线并启动采样协程
func (g *resourceGuard) start() {
	interval := g.cfg.SampleInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	// 基线采样失败不阻塞执行，峰值增量按 0 起算
	if _, rssMB, err := g.sample(); err == nil {
		g.mu.Lock()
		g.baselineMB = rssMB
		g.peakMB = rssMB
		g.mu.Unlock()
	}

	syncx.Go().OnPanic(func(r interface{}) {
		g.logger.ErrorKV("资源看护协程 panic", "panic", r)
	}).Exec(func() {
		g.loop(interval)
	})
}

// stop 停止采样，可重复调用
func (g *resourceGuard) stop() {
	if g.stopped.CAS(false, true) {
		close(g.stopCh)
	}
}

func (g *resourceGuard) loop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.check()
		}
	}
}

func (g *resourceGuard) check() {
	cpuPct, rssMB, err := g.sample()
	if err != nil {
		return
	}

	g.mu.Lock()
	if rssMB > g.peakMB {
		g.peakMB = rssMB
	}
	g.mu.Unlock()

	// 内存硬限：越界即打断，只触发一次
	if g.cfg.MemoryLimitMB > 0 && rssMB > float64(g.cfg.MemoryLimitMB) {
		if g.memExceeded.CAS(false, true) {
			g.logger.WarnKV("任务内存越界，打断执行",
				"rss_mb", math.Round(rssMB*100)/100,
				"limit_mb", g.cfg.MemoryLimitMB)
			g.interrupt(fmt.Sprintf("exceeded memory limit of %dMB", g.cfg.MemoryLimitMB))
		}
		return
	}

	// CPU 软限：协作式退让，超出越多让出越久，不打断任务
	if g.cfg.CPULimitPercent > 0 && g.cfg.CPULimitPercent < 100 && cpuPct > float64(g.cfg.CPULimitPercent) {
		over := cpuPct - float64(g.cfg.CPULimitPercent)
		time.Sleep(time.Duration(over) * cpuBackoffStep)
	}
}

// peakDeltaMB 执行期间 RSS 峰值相对基线的增量
func (g *resourceGuard) peakDeltaMB() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	delta := g.peakMB - g.baselineMB
	if delta < 0 {
		return 0
	}
	return math.Round(delta*100) / 100
}

func (g *resourceGuard) memoryExceeded() bool {
	return g.memExceeded.Load()
}
