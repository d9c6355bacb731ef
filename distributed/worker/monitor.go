/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-02 10:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\distributed\worker\monitor.go
 * @Description: 资源监控器：CPU/内存/磁盘/电池/GPU 采集
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package worker

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/distatus/battery"
	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-toolbox/pkg/osx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// snapshotTTL 动态指标缓存时长，Master 轮询与心跳共用同一份采样
const snapshotTTL = 2 * time.Second

// ResourceMonitor 资源监控器
// 静态硬件信息启动时探测一次，动态指标按 TTL 缓存
type ResourceMonitor struct {
	mu     *syncx.RWLock // 使用 syncx.RWLock 替代 sync.RWMutex
	logger logger.ILogger

	cached   *common.ResourceSnapshot
	cachedAt time.Time

	hostname        string
	platform        string
	platformVersion string
	cpuCores        int
	cpuThreads      int

	gpuOnce sync.Once
	hasGPU  bool
	gpuInfo string
}

// NewResourceMonitor 创建资源监控器
func NewResourceMonitor(log logger.ILogger) *ResourceMonitor {
	rm := &ResourceMonitor{
		mu:       syncx.NewRWLock(),
		logger:   log,
		hostname: osx.SafeGetHostName(),
	}
	rm.detectStatic()
	return rm
}

// detectStatic 平台与 CPU 拓扑信息，运行期间不变
func (rm *ResourceMonitor) detectStatic() {
	if info, err := host.Info(); err == nil {
		rm.platform = info.Platform
		rm.platformVersion = info.PlatformVersion
	} else {
		rm.platform = runtime.GOOS
	}
	if cores, err := cpu.Counts(false); err == nil {
		rm.cpuCores = cores
	}
	if threads, err := cpu.Counts(true); err == nil {
		rm.cpuThreads = threads
	}
}

// Snapshot 当前资源快照，TTL 内重复调用返回缓存
func (rm *ResourceMonitor) Snapshot() *common.ResourceSnapshot {
	cached := syncx.WithRLockReturnValue(rm.mu, func() *common.ResourceSnapshot {
		if rm.cached != nil && time.Since(rm.cachedAt) < snapshotTTL {
			return rm.cached
		}
		return nil
	})
	if cached != nil {
		return cached
	}

	fresh := rm.collect()
	syncx.WithLock(rm.mu, func() {
		rm.cached = fresh
		rm.cachedAt = time.Now()
	})
	return fresh
}

func (rm *ResourceMonitor) collect() *common.ResourceSnapshot {
	snapshot := &common.ResourceSnapshot{
		BatteryPercent:  -1, // 无电池
		Hostname:        rm.hostname,
		Platform:        rm.platform,
		PlatformVersion: rm.platformVersion,
		CPUCores:        rm.cpuCores,
		CPUThreads:      rm.cpuThreads,
		SampledAt:       time.Now(),
	}

	if cpuPercents, err := cpu.Percent(0, false); err == nil && len(cpuPercents) > 0 {
		snapshot.CPUPercent = cpuPercents[0]
	}

	if v, err := mem.VirtualMemory(); err == nil {
		snapshot.MemoryPercent = v.UsedPercent
		snapshot.MemoryTotalMB = float64(v.Total) / 1024 / 1024
		snapshot.MemoryAvailableMB = float64(v.Available) / 1024 / 1024
	}

	if usage, err := disk.Usage(diskRoot()); err == nil {
		snapshot.DiskPercent = usage.UsedPercent
		snapshot.DiskFreeGB = float64(usage.Free) / 1024 / 1024 / 1024
	}

	rm.fillBattery(snapshot)
	rm.fillGPU(snapshot)
	return snapshot
}

func diskRoot() string {
	if runtime.GOOS == "windows" {
		return "C:"
	}
	return "/"
}

func (rm *ResourceMonitor) fillBattery(snapshot *common.ResourceSnapshot) {
	batteries, err := battery.GetAll()
	if err != nil || len(batteries) == 0 {
		return
	}

	bat := batteries[0]
	if bat.Full > 0 {
		snapshot.BatteryPercent = bat.Current / bat.Full * 100
	}
	switch bat.State.String() {
	case "Charging", "Full", "Idle", "Not charging":
		snapshot.BatteryPlugged = true
	}
}

func (rm *ResourceMonitor) fillGPU(snapshot *common.ResourceSnapshot) {
	rm.gpuOnce.Do(rm.detectGPU)
	snapshot.HasGPU = rm.hasGPU
	snapshot.GPUInfo = rm.gpuInfo
}

// detectGPU 通过 nvidia-smi 探测一次，命令缺失视为无 GPU
func (rm *ResourceMonitor) detectGPU() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Output()
	if err != nil {
		return
	}

	name := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if name == "" {
		return
	}
	rm.hasGPU = true
	rm.gpuInfo = name
	rm.logger.InfoKV("GPU detected", "gpu", name)
}
