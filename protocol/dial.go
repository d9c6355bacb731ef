/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-29 08:40:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-20 19:02:10
 * @FilePath: \go-taskfarm\protocol\dial.go
 * @Description: 带重试的 Worker 拨号，失败原因结构化（timeout/refused/no-route/other）
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/kamalyes/go-taskfarm/logger"
)

// DialReason 连接失败的结构化原因
type DialReason string

const (
	DialReasonTimeout DialReason = "timeout"  // 连接超时
	DialReasonRefused DialReason = "refused"  // 对端拒绝
	DialReasonNoRoute DialReason = "no-route" // 路由不可达
	DialReasonOther   DialReason = "other"    // 其它套接字错误
)

// remediationHints 面向使用者的排查建议
var remediationHints = map[DialReason]string{
	DialReasonTimeout: "对端无响应：确认 Worker 正在运行、地址正确、网络可达",
	DialReasonRefused: "连接被拒绝：Worker 未监听该端口，检查端口号与防火墙放行",
	DialReasonNoRoute: "路由不可达：确认两台机器处于同一网络、网关配置正确",
	DialReasonOther:   "套接字错误：检查本机网络栈与对端状态",
}

// DialError 重试耗尽后的连接失败
type DialError struct {
	Addr     string
	Attempts int
	Reason   DialReason
	Hint     string
	Err      error // 最后一次底层错误
}

func (e *DialError) Error() string {
	return fmt.Sprintf("connect %s failed after %d attempts (%s): %v", e.Addr, e.Attempts, e.Reason, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

// DialOptions 拨号参数
type DialOptions struct {
	Retries        int           // 尝试次数
	ConnectTimeout time.Duration // 单次连接上限
	RetryBackoff   time.Duration // 两次尝试之间的固定退避
	IOTimeout      time.Duration // 成功后的读写超时基线
	Logger         logger.ILogger
}

// DefaultDialOptions 默认拨号参数
func DefaultDialOptions() DialOptions {
	return DialOptions{
		Retries:        3,
		ConnectTimeout: 10 * time.Second,
		RetryBackoff:   3 * time.Second,
		IOTimeout:      30 * time.Second,
	}
}

// Dial 逐次尝试建立到 Worker 的 TCP 会话
// 每次失败等待固定退避后重试，最后一次失败后不再等待；
// 重试耗尽返回 *DialError，调用方据此向用户给出排查建议
func Dial(ctx context.Context, ip string, port int, opts DialOptions) (*Conn, error) {
	if opts.Retries <= 0 {
		opts.Retries = 1
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default
	}
	addr := net.JoinHostPort(ip, fmt.Sprintf("%d", port))

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		dialer := net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}
		raw, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			opts.Logger.InfoKV("已连接 Worker", "addr", addr, "attempt", attempt)
			return NewConn(raw, ConnOptions{
				ReadTimeout:  opts.IOTimeout,
				WriteTimeout: opts.IOTimeout,
				Logger:       opts.Logger,
			}), nil
		}

		lastErr = err
		reason := classifyDialError(err)
		opts.Logger.WarnKV("连接 Worker 失败",
			"addr", addr,
			"attempt", attempt,
			"retries", opts.Retries,
			"reason", string(reason),
			"error", err.Error())

		if attempt < opts.Retries {
			select {
			case <-ctx.Done():
				return nil, &DialError{Addr: addr, Attempts: attempt, Reason: DialReasonOther, Hint: remediationHints[DialReasonOther], Err: ctx.Err()}
			case <-time.After(opts.RetryBackoff):
			}
		}
	}

	reason := classifyDialError(lastErr)
	return nil, &DialError{
		Addr:     addr,
		Attempts: opts.Retries,
		Reason:   reason,
		Hint:     remediationHints[reason],
		Err:      lastErr,
	}
}

// classifyDialError 套接字错误归类
func classifyDialError(err error) DialReason {
	if err == nil {
		return DialReasonOther
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return DialReasonTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return DialReasonRefused
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return DialReasonNoRoute
	}
	return DialReasonOther
}
