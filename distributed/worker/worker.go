/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-02 10:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\distributed\worker\worker.go
 * @Description: Worker 节点实现：监听 Master 接入、宣告存在、执行任务
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package worker

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-taskfarm/distributed/discovery"
	"github.com/kamalyes/go-taskfarm/executor"
	"github.com/kamalyes/go-taskfarm/protocol"
	"github.com/kamalyes/go-toolbox/pkg/errorx"
	"github.com/kamalyes/go-toolbox/pkg/netx"
	"github.com/kamalyes/go-toolbox/pkg/osx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// masterSession 与 Master 的单个活动会话
// 新 Master 接入会替换旧会话，Worker 始终只服务最近的连接
type masterSession struct {
	conn   *protocol.Conn
	closed *syncx.Bool
}

// Worker 工作节点
type Worker struct {
	config       *common.WorkerConfig
	discoveryCfg *common.DiscoveryConfig

	id          string // advertiseIP:port，监听就绪后生成
	hostname    string
	advertiseIP string

	executor  *executor.Executor
	monitor   *ResourceMonitor
	announcer *discovery.Announcer

	listener *net.TCPListener

	sessionMu *syncx.RWLock
	session   *masterSession

	activeTasks *syncx.Int32 // 使用 syncx.Int32
	running     *syncx.Bool  // 使用 syncx.Bool
	ctx         context.Context
	cancelFunc  context.CancelFunc
	logger      logger.ILogger
}

// NewWorker 创建 Worker 实例
func NewWorker(config *common.WorkerConfig, discoveryCfg *common.DiscoveryConfig, log logger.ILogger) (*Worker, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	advertiseIP := config.AdvertiseIP
	if advertiseIP == "" {
		ip, err := netx.GetPrivateIP()
		if err != nil {
			ip = "127.0.0.1"
		}
		advertiseIP = ip
	}

	return &Worker{
		config:       config,
		discoveryCfg: discoveryCfg,
		hostname:     osx.SafeGetHostName(),
		advertiseIP:  advertiseIP,
		executor:     executor.New(config.Executor, log),
		monitor:      NewResourceMonitor(log),
		sessionMu:    syncx.NewRWLock(),
		activeTasks:  syncx.NewInt32(0),
		running:      syncx.NewBool(false),
		logger:       log,
	}, nil
}

// Start 启动 Worker：开始监听并按需宣告存在
func (w *Worker) Start(ctx context.Context) error {
	if !w.running.CAS(false, true) {
		return fmt.Errorf("worker is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	w.ctx = ctx
	w.cancelFunc = cancel

	addr := fmt.Sprintf("%s:%d", w.config.ListenIP, w.config.ListenPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		w.running.Store(false)
		cancel()
		return errorx.WrapError("listen on "+addr, err)
	}
	w.listener = listener.(*net.TCPListener)

	// 端口可能由系统分配，节点 ID 与广播器都在监听就绪后确定
	port := w.listener.Addr().(*net.TCPAddr).Port
	w.id = fmt.Sprintf("%s:%d", w.advertiseIP, port)

	if w.discoveryCfg != nil && w.discoveryCfg.Enabled {
		w.announcer = discovery.NewAnnouncer(w.discoveryCfg, w.hostname, w.advertiseIP, port, w.logger)
		if err := w.announcer.Start(ctx); err != nil {
			w.logger.WarnKV("Discovery announcer failed to start", "error", err)
			w.announcer = nil
		}
	}

	syncx.Go().OnPanic(func(r interface{}) {
		w.logger.ErrorKV("Accept loop panic", "panic", r)
	}).Exec(func() {
		w.acceptLoop()
	})

	w.logger.InfoKV("Worker started",
		"worker_id", w.id,
		"listen", w.listener.Addr().String(),
		"capabilities", w.config.Capabilities)
	return nil
}

// Stop 停止 Worker 服务
func (w *Worker) Stop() error {
	if !w.running.CAS(true, false) {
		return fmt.Errorf("worker is not running")
	}

	w.logger.InfoMsg("Stopping worker...")

	// 先道别再拆会话，Master 可立即回收未完成任务
	if session := w.currentSession(); session != nil {
		goodbye := protocol.NewMessage(protocol.MessageTypeDisconnect, map[string]any{
			"reason": "worker shutdown",
		})
		if err := session.conn.Send(goodbye); err != nil {
			w.logger.DebugKV("Goodbye send failed", "error", err)
		}
	}
	w.dropSession()

	if w.announcer != nil {
		w.announcer.Stop()
	}
	if w.listener != nil {
		w.listener.Close()
	}
	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	w.logger.InfoMsg("Worker stopped")
	return nil
}

// ID 节点标识，Start 之后有效
func (w *Worker) ID() string {
	return w.id
}

// Port 实际监听端口，Start 之后有效
func (w *Worker) Port() int {
	if w.listener == nil {
		return 0
	}
	return w.listener.Addr().(*net.TCPAddr).Port
}

// ActiveTasks 在执行的任务数，下限为 0
func (w *Worker) ActiveTasks() int {
	n := int(w.activeTasks.Load())
	if n < 0 {
		return 0
	}
	return n
}

// Connected 是否存在活动的 Master 会话
func (w *Worker) Connected() bool {
	return w.currentSession() != nil
}

// Resources 当前资源快照
func (w *Worker) Resources() *common.ResourceSnapshot {
	return w.monitor.Snapshot()
}

// acceptLoop 周期性带期限 Accept，停止时自然退出
func (w *Worker) acceptLoop() {
	for w.running.Load() {
		w.listener.SetDeadline(time.Now().Add(time.Second))
		conn, err := w.listener.Accept()
		if err != nil {
			if protocol.IsTimeout(err) {
				continue
			}
			if !w.running.Load() {
				return
			}
			w.logger.WarnKV("Accept failed", "error", err)
			continue
		}
		w.handleMasterConn(conn)
	}
}

// handleMasterConn 新 Master 接入：替换旧会话并回报 READY
func (w *Worker) handleMasterConn(raw net.Conn) {
	conn := protocol.NewConn(raw, protocol.ConnOptions{
		ReadTimeout:  w.config.IOTimeout,
		WriteTimeout: w.config.IOTimeout,
		Logger:       w.logger,
	})

	session := &masterSession{conn: conn, closed: syncx.NewBool(false)}

	old := syncx.WithLockReturnValue(w.sessionMu, func() *masterSession {
		prev := w.session
		w.session = session
		return prev
	})
	if old != nil {
		w.logger.WarnKV("Replacing master session",
			"old", old.conn.RemoteAddr(),
			"new", conn.RemoteAddr())
		old.closed.Store(true)
		old.conn.Close()
	}

	ready := protocol.NewMessage(protocol.MessageTypeReady, map[string]any{
		"worker_id":    w.id,
		"capabilities": w.config.Capabilities,
		"hostname":     w.hostname,
	})
	if err := conn.Send(ready); err != nil {
		w.logger.WarnKV("Ready send failed", "master", conn.RemoteAddr(), "error", err)
		w.clearSession(session, "ready send failed")
		return
	}

	w.logger.InfoKV("Master connected", "master", conn.RemoteAddr())

	syncx.Go().OnPanic(func(r interface{}) {
		w.logger.ErrorKV("Session reader panic", "panic", r)
		w.clearSession(session, "reader panic")
	}).Exec(func() {
		w.readLoop(session)
	})
}

func (w *Worker) currentSession() *masterSession {
	return syncx.WithRLockReturnValue(w.sessionMu, func() *masterSession {
		return w.session
	})
}

// clearSession 关闭指定会话，仅当它仍是当前会话时才摘除
func (w *Worker) clearSession(session *masterSession, reason string) {
	if !session.closed.CAS(false, true) {
		return
	}
	session.conn.Close()

	syncx.WithLock(w.sessionMu, func() {
		if w.session == session {
			w.session = nil
		}
	})

	if w.running.Load() {
		w.logger.WarnKV("Master session closed", "reason", reason)
	}
}

// dropSession 摘除并关闭当前会话
func (w *Worker) dropSession() {
	session := syncx.WithLockReturnValue(w.sessionMu, func() *masterSession {
		prev := w.session
		w.session = nil
		return prev
	})
	if session != nil {
		session.closed.Store(true)
		session.conn.Close()
	}
}

// sendToMaster 当前会话发送，无会话时丢弃消息
// Master 掉线后未送达的结果由其重连回收机制兜底
func (w *Worker) sendToMaster(msg *protocol.Message) {
	session := w.currentSession()
	if session == nil {
		w.logger.DebugKV("No master session, message dropped", "type", string(msg.Type))
		return
	}
	if err := session.conn.Send(msg); err != nil {
		w.logger.WarnKV("Send to master failed", "type", string(msg.Type), "error", err)
		w.clearSession(session, "send failed")
	}
}
