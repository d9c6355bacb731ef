/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-30 11:20:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 08:55:46
 * @FilePath: \go-taskfarm\distributed\discovery\scanner.go
 * @Description: Master 侧发现监听与主动探测
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

// Scanner Master 侧发现组件
// 监听固定端口接收 worker_discovery 广播，同时周期发送 master_probe
// 诱发单播应答；两条路径写同一张发现表。
// 发现只是可用性优化，任务分发从不依赖已建立连接的发现条目是否新鲜
type Scanner struct {
	cfg   *common.DiscoveryConfig
	table *Table

	listener net.PacketConn // 固定端口广播接收
	prober   net.PacketConn // 探测发送 + 单播应答接收

	onDiscovered func(*DiscoveredWorker)

	running *syncx.Bool
	cancel  context.CancelFunc
	log     logger.ILogger
}

// NewScanner 创建发现扫描器
func NewScanner(cfg *common.DiscoveryConfig, log logger.ILogger) *Scanner {
	if cfg == nil {
		cfg = common.DefaultDiscoveryConfig()
	}
	if log == nil {
		log = logger.Default
	}
	return &Scanner{
		cfg:     cfg,
		table:   NewTable(),
		running: syncx.NewBool(false),
		log:     log,
	}
}

// OnDiscovered 注册首次发现回调（启动前设置）
func (s *Scanner) OnDiscovered(fn func(*DiscoveredWorker)) {
	s.onDiscovered = fn
}

// Workers 发现表快照
func (s *Scanner) Workers() map[string]*DiscoveredWorker {
	return s.table.Snapshot()
}

// Start 打开套接字并启动监听/探测循环
func (s *Scanner) Start(ctx context.Context) error {
	if !s.running.CAS(false, true) {
		return nil
	}

	lc := net.ListenConfig{Control: discoverySocketControl}
	listener, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("bind discovery port :%d: %w", s.cfg.Port, err)
	}
	prober, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		_ = listener.Close()
		s.running.Store(false)
		return fmt.Errorf("open probe socket: %w", err)
	}
	s.listener = listener
	s.prober = prober

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	syncx.Go().
		OnPanic(func(r interface{}) {
			s.log.ErrorKV("发现监听循环异常退出", "panic", r)
		}).
		Exec(func() { s.receiveLoop(loopCtx, s.listener) })

	syncx.Go().
		OnPanic(func(r interface{}) {
			s.log.ErrorKV("探测应答接收循环异常退出", "panic", r)
		}).
		Exec(func() { s.receiveLoop(loopCtx, s.prober) })

	syncx.Go().
		OnPanic(func(r interface{}) {
			s.log.ErrorKV("探测广播循环异常退出", "panic", r)
		}).
		Exec(func() { s.probeLoop(loopCtx) })

	s.log.InfoKV("发现扫描已启动", "port", s.cfg.Port, "stale_timeout", s.cfg.StaleTimeout.String())
	return nil
}

// Stop 停止所有循环并释放套接字
func (s *Scanner) Stop() {
	if !s.running.CAS(true, false) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.prober != nil {
		_ = s.prober.Close()
	}
	s.log.Info("发现扫描已停止")
}

// receiveLoop 接收发现数据报；读超时 tick 顺带剔除过期条目
func (s *Scanner) receiveLoop(ctx context.Context, conn net.PacketConn) {
	buf := make([]byte, 4096)
	for s.running.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if protocol.IsTimeout(err) {
				s.pruneStale()
				continue
			}
			if !s.running.Load() {
				return
			}
			s.log.DebugKV("发现数据报读取失败", "error", err.Error())
			continue
		}

		s.handleDatagram(buf[:n], addr)
	}
}

// handleDatagram 解析单个发现数据报并更新发现表
func (s *Scanner) handleDatagram(raw []byte, from net.Addr) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		s.log.DebugKV("丢弃无法解析的发现数据报", "from", from.String(), "error", err.Error())
		return
	}

	switch msg.Type {
	case protocol.MessageTypeWorkerDiscovery, protocol.MessageTypeWorkerProbeReply:
		hostname := msg.GetString("hostname")
		ip := msg.GetString("ip")
		port := msg.GetInt("port")
		if ip == "" || port <= 0 {
			return
		}
		entry, isNew := s.table.Upsert(hostname, ip, port)
		if isNew {
			s.log.InfoKV("发现新 Worker", "id", entry.ID(), "hostname", hostname, "via", string(msg.Type))
			if s.onDiscovered != nil {
				s.onDiscovered(entry)
			}
		}
	case protocol.MessageTypeMasterProbe:
		// 自己或其它 Master 的探测广播，忽略
	default:
		s.log.DebugKV("忽略未知发现消息", "type", string(msg.Type))
	}
}

// probeLoop 周期广播 master_probe
func (s *Scanner) probeLoop(ctx context.Context) {
	target := &net.UDPAddr{IP: net.IPv4bcast, Port: s.cfg.Port}
	send := func() {
		if !s.running.Load() {
			return
		}
		msg := protocol.NewMessage(protocol.MessageTypeMasterProbe, map[string]any{
			"timestamp": protocol.NowUnix(),
		})
		raw, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if _, err := s.prober.WriteTo(raw, target); err != nil {
			s.log.DebugKV("master_probe 广播失败", "error", err.Error())
		}
	}

	send()
	syncx.NewEventLoop(ctx).
		OnTicker(s.cfg.BroadcastInterval, send).
		Run()
}

// pruneStale 剔除超时条目
func (s *Scanner) pruneStale() {
	expired := s.table.Prune(s.cfg.StaleTimeout)
	for _, id := range expired {
		s.log.InfoKV("发现条目过期", "id", id, "timeout", s.cfg.StaleTimeout.String())
	}
}
