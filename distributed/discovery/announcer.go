/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-30 11:20:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 08:55:46
 * @FilePath: \go-taskfarm\distributed\discovery\announcer.go
 * @Description: Worker 侧发现广播与探测应答
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-taskfarm/logger"
	"github.com/kamalyes/go-taskfarm/protocol"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// Announcer Worker 侧发现组件
// 周期广播 worker_discovery，另起探测监听对 master_probe 做单播应答，
// 补偿广播不可靠的网络环境
type Announcer struct {
	cfg         *common.DiscoveryConfig
	hostname    string
	advertiseIP string
	servicePort int

	sender    net.PacketConn // 广播发送
	probeConn net.PacketConn // 固定端口探测监听

	running *syncx.Bool
	cancel  context.CancelFunc
	log     logger.ILogger
}

// NewAnnouncer 创建发现广播器
func NewAnnouncer(cfg *common.DiscoveryConfig, hostname, advertiseIP string, servicePort int, log logger.ILogger) *Announcer {
	if cfg == nil {
		cfg = common.DefaultDiscoveryConfig()
	}
	if log == nil {
		log = logger.Default
	}
	return &Announcer{
		cfg:         cfg,
		hostname:    hostname,
		advertiseIP: advertiseIP,
		servicePort: servicePort,
		running:     syncx.NewBool(false),
		log:         log,
	}
}

// Start 打开套接字并启动广播/应答循环
func (a *Announcer) Start(ctx context.Context) error {
	if !a.running.CAS(false, true) {
		return nil
	}

	lc := net.ListenConfig{Control: discoverySocketControl}
	sender, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		a.running.Store(false)
		return fmt.Errorf("open discovery sender: %w", err)
	}
	probeConn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", a.cfg.Port))
	if err != nil {
		_ = sender.Close()
		a.running.Store(false)
		return fmt.Errorf("open probe listener on :%d: %w", a.cfg.Port, err)
	}
	a.sender = sender
	a.probeConn = probeConn

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	syncx.Go().
		OnPanic(func(r interface{}) {
			a.log.ErrorKV("发现广播循环异常退出", "panic", r)
		}).
		Exec(func() { a.broadcastLoop(loopCtx) })

	syncx.Go().
		OnPanic(func(r interface{}) {
			a.log.ErrorKV("探测应答循环异常退出", "panic", r)
		}).
		Exec(func() { a.probeLoop(loopCtx) })

	a.log.InfoKV("发现广播已启动",
		"hostname", a.hostname,
		"advertise", fmt.Sprintf("%s:%d", a.advertiseIP, a.servicePort),
		"interval", a.cfg.BroadcastInterval.String())
	return nil
}

// Stop 停止广播与应答并释放套接字
func (a *Announcer) Stop() {
	if !a.running.CAS(true, false) {
		return
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.sender != nil {
		_ = a.sender.Close()
	}
	if a.probeConn != nil {
		_ = a.probeConn.Close()
	}
	a.log.Info("发现广播已停止")
}

// announcePayload 广播与应答共用的自述载荷
func (a *Announcer) announcePayload() map[string]any {
	return map[string]any{
		"hostname": a.hostname,
		"ip":       a.advertiseIP,
		"port":     a.servicePort,
	}
}

// broadcastLoop 周期向发现端口广播 worker_discovery
func (a *Announcer) broadcastLoop(ctx context.Context) {
	target := &net.UDPAddr{IP: net.IPv4bcast, Port: a.cfg.Port}
	send := func() {
		if !a.running.Load() {
			return
		}
		msg := protocol.NewMessage(protocol.MessageTypeWorkerDiscovery, a.announcePayload())
		raw, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if _, err := a.sender.WriteTo(raw, target); err != nil {
			a.log.DebugKV("worker_discovery 广播失败", "error", err.Error())
		}
	}

	send() // 启动即宣告一次，降低被发现延迟
	syncx.NewEventLoop(ctx).
		OnTicker(a.cfg.BroadcastInterval, send).
		Run()
}

// probeLoop 监听 master_probe 并对来源地址单播应答
func (a *Announcer) probeLoop(ctx context.Context) {
	buf := make([]byte, 4096)
	for a.running.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = a.probeConn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := a.probeConn.ReadFrom(buf)
		if err != nil {
			if protocol.IsTimeout(err) {
				continue
			}
			if !a.running.Load() {
				return
			}
			a.log.DebugKV("探测监听读取失败", "error", err.Error())
			continue
		}

		msg, err := protocol.Decode(buf[:n])
		if err != nil || msg.Type != protocol.MessageTypeMasterProbe {
			continue
		}

		reply := protocol.NewMessage(protocol.MessageTypeWorkerProbeReply, a.announcePayload())
		raw, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		if _, err := a.probeConn.WriteTo(raw, addr); err != nil {
			a.log.DebugKV("worker_probe_reply 发送失败", "to", addr.String(), "error", err.Error())
		} else {
			a.log.DebugKV("已应答 Master 探测", "to", addr.String())
		}
	}
}
