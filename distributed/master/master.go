/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-01 09:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 18:48:33
 * @FilePath: \go-taskfarm\distributed\master\master.go
 * @Description: Master 主控制器
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package master

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-taskfarm/distributed/discovery"
	"github.com/kamalyes/go-taskfarm/protocol"
	"github.com/kamalyes/go-taskfarm/statistics"
	"github.com/kamalyes/go-toolbox/pkg/errorx"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// ErrNoWorkers 当前没有可接收任务的 Worker
var ErrNoWorkers = errors.New("no connected workers available")

// HandlerFunc 协作方消息钩子，在核心处理完成后调用
type HandlerFunc func(workerID string, msg *protocol.Message)

// Callbacks 生命周期回调，全部可选
type Callbacks struct {
	OnWorkerConnected    func(worker *common.WorkerInfo)
	OnWorkerDisconnected func(workerID string, requeuedTasks []string)
	OnWorkerDiscovered   func(worker *discovery.DiscoveredWorker)
	OnTaskProgress       func(taskID string, progress int)
	OnTaskComplete       func(task *common.Task)
}

// workerSession 一条到 Worker 的活跃会话
// closed 保证拆除逻辑（标记断开 + 任务重排）恰好执行一次
type workerSession struct {
	workerID string
	conn     *protocol.Conn
	closed   *syncx.Bool
}

// Master Master 节点主控制器
// 连接方向固定为 Master 拨号 Worker，会话断开即触发任务重排
type Master struct {
	config    *common.MasterConfig
	pool      *WorkerPool
	tasks     *TaskManager
	selector  WorkerSelector
	health    *HealthChecker
	scanner   *discovery.Scanner
	sessions  *syncx.Map[string, *workerSession]
	periodic  *syncx.PeriodicTaskManager
	collector *statistics.Collector

	handlerMu *syncx.RWLock
	handlers  map[protocol.MessageType][]HandlerFunc
	callbacks Callbacks

	running    *syncx.Bool
	startedAt  time.Time
	ctx        context.Context
	cancelFunc context.CancelFunc
	logger     logger.ILogger
}

// NewMaster 创建 Master 实例；discoveryCfg 为 nil 或 Enabled=false 时不开启自动发现
func NewMaster(config *common.MasterConfig, discoveryCfg *common.DiscoveryConfig, log logger.ILogger) (*Master, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	m := &Master{
		config:    config,
		pool:      NewWorkerPool(log),
		tasks:     NewTaskManager(log),
		selector:  GetSelector(config.SelectStrategy),
		sessions:  syncx.NewMap[string, *workerSession](),
		periodic:  syncx.NewPeriodicTaskManager(),
		collector: statistics.NewCollector(),
		handlerMu: syncx.NewRWLock(),
		handlers:  make(map[protocol.MessageType][]HandlerFunc),
		running:   syncx.NewBool(false),
		logger:    log,
	}
	m.health = NewHealthChecker(m.pool, config.HeartbeatInterval, config.HeartbeatTimeout, func(workerID string) {
		m.handleWorkerLoss(workerID, "heartbeat expired")
	}, log)
	if discoveryCfg != nil && discoveryCfg.Enabled {
		m.scanner = discovery.NewScanner(discoveryCfg, log)
	}
	return m, nil
}

// Start 启动 Master 服务
func (m *Master) Start(ctx context.Context) error {
	if !m.running.CAS(false, true) {
		return fmt.Errorf("master is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	m.ctx = ctx
	m.cancelFunc = cancel
	m.startedAt = time.Now()

	m.health.Start(ctx)

	if m.scanner != nil {
		m.scanner.OnDiscovered(m.handleDiscovered)
		if err := m.scanner.Start(ctx); err != nil {
			// 发现失败不致命，协作方仍可手动连接
			m.logger.WarnKV("Discovery scanner failed to start, manual connect only", "error", err)
			m.scanner = nil
		}
	}

	m.periodic.AddTask(syncx.NewPeriodicTask("heartbeat", m.config.HeartbeatInterval, func(taskCtx context.Context) error {
		m.broadcastHeartbeat()
		return nil
	}))
	m.periodic.AddTask(syncx.NewPeriodicTask("resource-poll", m.config.ResourcePollInterval, func(taskCtx context.Context) error {
		m.broadcast(protocol.NewMessage(protocol.MessageTypeResourceRequest, nil))
		return nil
	}))
	if m.config.AutoDispatch {
		m.periodic.AddTask(syncx.NewPeriodicTask("auto-dispatch", m.config.DispatchInterval, func(taskCtx context.Context) error {
			m.drainPending()
			return nil
		}))
	}
	m.periodic.StartWithContext(ctx)

	m.logger.InfoKV("Master started",
		"strategy", m.config.SelectStrategy,
		"auto_dispatch", m.config.AutoDispatch,
		"discovery", m.scanner != nil)
	return nil
}

// Stop 停止 Master 服务，向所有 Worker 发送告别消息
func (m *Master) Stop() error {
	if !m.running.CAS(true, false) {
		return fmt.Errorf("master is not running")
	}

	m.logger.Info("Stopping master...")

	goodbye := protocol.NewMessage(protocol.MessageTypeDisconnect, map[string]any{"reason": "master shutdown"})
	m.sessions.Range(func(workerID string, sess *workerSession) bool {
		_ = sess.conn.Send(goodbye) // 尽力而为
		sess.closed.Store(true)
		sess.conn.Close()
		m.sessions.Delete(workerID)
		return true
	})

	if m.scanner != nil {
		m.scanner.Stop()
	}
	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	m.logger.Info("Master stopped")
	return nil
}

// SetCallbacks 注册生命周期回调，须在 Start 之前调用
func (m *Master) SetCallbacks(cb Callbacks) {
	m.callbacks = cb
}

// RegisterHandler 注册协作方消息钩子，在核心处理之后按注册顺序执行
func (m *Master) RegisterHandler(msgType protocol.MessageType, handler HandlerFunc) {
	if handler == nil {
		return
	}
	syncx.WithLock(m.handlerMu, func() {
		m.handlers[msgType] = append(m.handlers[msgType], handler)
	})
}

// ConnectToWorker 拨号连接 Worker 并注册会话
// 已有活跃会话时直接返回，重复调用是幂等的
func (m *Master) ConnectToWorker(ctx context.Context, ip string, port int) (string, error) {
	workerID := fmt.Sprintf("%s:%d", ip, port)
	if sess, ok := m.sessions.Load(workerID); ok && !sess.closed.Load() {
		return workerID, nil
	}

	conn, err := protocol.Dial(ctx, ip, port, protocol.DialOptions{
		Retries:        m.config.ConnectRetries,
		ConnectTimeout: m.config.ConnectTimeout,
		RetryBackoff:   m.config.RetryBackoff,
		IOTimeout:      m.config.IOTimeout,
		Logger:         m.logger,
	})
	if err != nil {
		return "", errorx.WrapError(fmt.Sprintf("connect to worker %s failed", workerID), err)
	}

	// 双重检查：另一条并发连接先建好时放弃本条
	if old, ok := m.sessions.Load(workerID); ok && !old.closed.Load() {
		conn.Close()
		return workerID, nil
	}

	sess := &workerSession{workerID: workerID, conn: conn, closed: syncx.NewBool(false)}
	m.sessions.Store(workerID, sess)
	m.pool.Register(&common.WorkerInfo{ID: workerID, IP: ip, Port: port})

	syncx.Go().OnPanic(func(r interface{}) {
		m.logger.ErrorKV("Session reader panic", "worker_id", workerID, "panic", r)
		m.handleWorkerLoss(workerID, "reader panic")
	}).Exec(func() {
		m.readLoop(sess)
	})

	m.logger.InfoKV("Worker connected", "worker_id", workerID)
	if cb := m.callbacks.OnWorkerConnected; cb != nil {
		if info, ok := m.pool.Get(workerID); ok {
			cb(info.Clone())
		}
	}
	return workerID, nil
}

// DisconnectWorker 主动断开 Worker：发送告别消息后拆除会话并重排其任务
// 会话不存在时视为已断开，返回 nil
func (m *Master) DisconnectWorker(workerID string) error {
	sess, ok := m.sessions.Load(workerID)
	if !ok {
		return nil
	}
	goodbye := protocol.NewMessage(protocol.MessageTypeDisconnect, map[string]any{"reason": "master requested"})
	_ = sess.conn.Send(goodbye) // 尽力而为
	m.handleWorkerLoss(workerID, "disconnect requested")
	return nil
}

// CreateTask 创建任务并入队，返回任务 ID
func (m *Master) CreateTask(taskType common.TaskType, code string, data map[string]any) (string, error) {
	if code == "" {
		return "", fmt.Errorf("task code cannot be empty")
	}
	task := m.tasks.Create(taskType, code, data)
	return task.ID, nil
}

// DispatchTask 按配置策略选择 Worker 并派发任务，返回承接的 Worker ID
// 对运行中的任务重复调用会向原 Worker 重发 task_request，不改变状态
func (m *Master) DispatchTask(taskID string) (string, error) {
	task, ok := m.tasks.Get(taskID)
	if !ok {
		return "", fmt.Errorf("task %s not found", taskID)
	}
	if task.Status.IsTerminal() {
		return "", fmt.Errorf("task %s is already %s", taskID, task.Status)
	}

	// 重派发路径：沿用原 Worker，只重发消息
	if task.Status == common.TaskStateRunning {
		if err := m.sendTaskRequest(task.WorkerID, task); err != nil {
			return "", err
		}
		return task.WorkerID, nil
	}

	workers := m.pool.GetConnected()
	if len(workers) == 0 {
		return "", ErrNoWorkers
	}
	workerID := m.selector.Pick(workers, task.Type)
	if workerID == "" {
		return "", ErrNoWorkers
	}

	if err := m.tasks.Assign(taskID, workerID); err != nil {
		return "", err
	}
	if err := m.sendTaskRequest(workerID, task); err != nil {
		// 发送失败即回滚，任务重新排队等待其它 Worker
		if rqErr := m.tasks.Requeue(taskID); rqErr != nil {
			m.logger.ErrorKV("Rollback after dispatch failure", "task_id", taskID, "error", rqErr)
		}
		m.handleWorkerLoss(workerID, "dispatch send failed")
		return "", err
	}
	m.pool.IncrementTaskCount(workerID)

	m.logger.InfoKV("Task dispatched", "task_id", taskID, "worker_id", workerID, "type", task.Type)
	return workerID, nil
}

// sendTaskRequest 向指定 Worker 下发 task_request
func (m *Master) sendTaskRequest(workerID string, task *common.Task) error {
	sess, ok := m.sessions.Load(workerID)
	if !ok {
		return fmt.Errorf("no active session for worker %s", workerID)
	}
	msg := protocol.NewMessage(protocol.MessageTypeTaskRequest, map[string]any{
		"task_id": task.ID,
		"type":    string(task.Type),
		"code":    task.Code,
		"data":    task.Data,
	})
	if err := sess.conn.Send(msg); err != nil {
		return errorx.WrapError(fmt.Sprintf("send task %s to worker %s failed", task.ID, workerID), err)
	}
	return nil
}

// finalizeTask 任务落入终态后的统一出口：记账并触发完成回调
// 只有完成了终态转换的调用方会走到这里，保证每个任务恰好记账一次
func (m *Master) finalizeTask(taskID string) {
	task, ok := m.tasks.Get(taskID)
	if !ok {
		return
	}
	m.collector.Record(statistics.OutcomeFromTask(task))
	if cb := m.callbacks.OnTaskComplete; cb != nil {
		cb(task)
	}
}

// GetTask 获取任务副本
func (m *Master) GetTask(taskID string) (*common.Task, bool) {
	return m.tasks.Get(taskID)
}

// GetAllTasks 获取所有任务副本
func (m *Master) GetAllTasks() []*common.Task {
	return m.tasks.GetAll()
}

// GetTasksByStatus 按状态筛选任务副本
func (m *Master) GetTasksByStatus(status common.TaskState) []*common.Task {
	return m.tasks.GetByStatus(status)
}

// ClearFinishedTasks 清理终态任务，返回清理数量
func (m *Master) ClearFinishedTasks() int {
	return m.tasks.Clear()
}

// GetConnectedWorkers 获取已连接 Worker 的副本表
func (m *Master) GetConnectedWorkers() map[string]*common.WorkerInfo {
	connected := m.pool.GetConnected()
	out := make(map[string]*common.WorkerInfo, len(connected))
	for _, w := range connected {
		out[w.ID] = w.Clone()
	}
	return out
}

// GetAllWorkers 获取全部 Worker 副本表（含已断开）
func (m *Master) GetAllWorkers() map[string]*common.WorkerInfo {
	return m.pool.Snapshot()
}

// DiscoveredWorkers 获取发现表快照，未开启发现时返回空表
func (m *Master) DiscoveredWorkers() map[string]*discovery.DiscoveredWorker {
	if m.scanner == nil {
		return map[string]*discovery.DiscoveredWorker{}
	}
	return m.scanner.Workers()
}

// MasterStats Master 运行状态汇总
type MasterStats struct {
	Running          bool        `json:"running"`
	WorkersConnected int         `json:"workers_connected"`
	WorkersTotal     int         `json:"workers_total"`
	Discovered       int         `json:"discovered"`
	Queue            *QueueStats `json:"queue"`
}

// Stats 获取运行状态
func (m *Master) Stats() *MasterStats {
	return &MasterStats{
		Running:          m.running.Load(),
		WorkersConnected: m.pool.ConnectedCount(),
		WorkersTotal:     m.pool.Count(),
		Discovered:       len(m.DiscoveredWorkers()),
		Queue:            m.tasks.Stats(),
	}
}

// Report 生成任务统计报告，运行时长从 Start 起算
func (m *Master) Report() *statistics.Report {
	var totalTime time.Duration
	if !m.startedAt.IsZero() {
		totalTime = time.Since(m.startedAt)
	}
	return m.collector.GenerateReport(totalTime)
}

// drainPending 依次派发待处理任务，直到队列耗尽或派发受阻
func (m *Master) drainPending() {
	for {
		taskID, ok := m.tasks.NextPending()
		if !ok {
			return
		}
		if _, err := m.DispatchTask(taskID); err != nil {
			if !errors.Is(err, ErrNoWorkers) {
				m.logger.WarnKV("Auto dispatch failed", "task_id", taskID, "error", err)
			}
			return
		}
	}
}

// broadcastHeartbeat 向所有会话发送心跳，载荷时间戳用于测量往返延迟
func (m *Master) broadcastHeartbeat() {
	m.broadcast(protocol.NewMessage(protocol.MessageTypeHeartbeat, map[string]any{
		"timestamp": protocol.NowUnix(),
	}))
}

// broadcast 向所有活跃会话发送消息，失败的会话按失联处理
func (m *Master) broadcast(msg *protocol.Message) {
	m.sessions.Range(func(workerID string, sess *workerSession) bool {
		if err := sess.conn.Send(msg); err != nil {
			m.logger.WarnKV("Broadcast send failed", "worker_id", workerID, "type", msg.Type, "error", err)
			m.handleWorkerLoss(workerID, "send failed")
		}
		return true
	})
}

// handleDiscovered 发现新 Worker 后自动建立连接
func (m *Master) handleDiscovered(dw *discovery.DiscoveredWorker) {
	if cb := m.callbacks.OnWorkerDiscovered; cb != nil {
		cb(dw)
	}
	if sess, ok := m.sessions.Load(dw.ID()); ok && !sess.closed.Load() {
		return
	}

	ip, port := dw.IP, dw.Port
	syncx.Go().OnPanic(func(r interface{}) {
		m.logger.ErrorKV("Auto connect panic", "worker", dw.ID(), "panic", r)
	}).Exec(func() {
		if _, err := m.ConnectToWorker(m.ctx, ip, port); err != nil {
			m.logger.WarnKV("Auto connect failed", "worker", dw.ID(), "error", err)
		}
	})
}

// handleWorkerLoss 会话拆除入口，CAS 保证只执行一次
// 停机路径只关闭连接；运行路径额外标记断开并重排该 Worker 的任务
func (m *Master) handleWorkerLoss(workerID, reason string) {
	sess, ok := m.sessions.Load(workerID)
	if !ok {
		return
	}
	if !sess.closed.CAS(false, true) {
		return
	}
	sess.conn.Close()
	m.sessions.Delete(workerID)

	if !m.running.Load() {
		return
	}

	if err := m.pool.MarkDisconnected(workerID); err != nil {
		m.logger.WarnKV("Mark disconnected failed", "worker_id", workerID, "error", err)
	}
	requeued := m.tasks.RequeueForWorker(workerID)
	m.collector.AddRequeues(len(requeued))
	m.logger.WarnKV("Worker lost",
		"worker_id", workerID,
		"reason", reason,
		"requeued_tasks", len(requeued))

	if cb := m.callbacks.OnWorkerDisconnected; cb != nil {
		cb(workerID, requeued)
	}
}
