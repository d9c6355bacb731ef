/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-29 08:40:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-20 19:02:10
 * @FilePath: \go-taskfarm\protocol\conn.go
 * @Description: 带 NDJSON 分帧的 TCP 会话封装，发送串行化、读取容忍半包
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kamalyes/go-taskfarm/logger"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// ErrConnClosed 会话已关闭
var ErrConnClosed = errors.New("connection closed")

// Conn 单条 TCP 会话
// 写入由互斥锁串行化，避免并发发送交错半条消息；
// 读取内部缓冲按 \n 切分，坏行记日志后跳过，连接保持存活
type Conn struct {
	raw          net.Conn
	reader       *bufio.Reader
	pending      []byte // 读超时后累积的半行
	readTimeout  time.Duration
	writeTimeout time.Duration
	closed       *syncx.Bool
	log          logger.ILogger
	mu           sync.Mutex // 保护并发写
}

// ConnOptions 会话参数
type ConnOptions struct {
	ReadTimeout  time.Duration // 单次读等待上限，0 表示阻塞读
	WriteTimeout time.Duration // 单次写上限，0 表示不设期限
	Logger       logger.ILogger
}

// NewConn 包装已建立的连接，配置 keepalive 与 no-delay
func NewConn(raw net.Conn, opts ConnOptions) *Conn {
	if opts.Logger == nil {
		opts.Logger = logger.Default
	}
	if tcpConn, ok := raw.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(30 * time.Second)
		_ = tcpConn.SetNoDelay(true)
	}
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReader(raw),
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
		closed:       syncx.NewBool(false),
		log:          opts.Logger,
	}
}

// RemoteAddr 对端地址
func (c *Conn) RemoteAddr() string {
	if c.raw == nil {
		return ""
	}
	return c.raw.RemoteAddr().String()
}

// Send 序列化并写出一条消息，写失败由调用方负责摘除对端
func (c *Conn) Send(msg *Message) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	line, err := msg.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return ErrConnClosed
	}
	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.raw.Write(line); err != nil {
		return err
	}
	return nil
}

// ReadMessage 读取下一条完整消息
// 读超时返回可由 IsTimeout 识别的错误，半行数据予以保留；
// 解析失败的行丢弃并继续读下一行
func (c *Conn) ReadMessage() (*Message, error) {
	for {
		if c.closed.Load() {
			return nil, ErrConnClosed
		}
		if c.readTimeout > 0 {
			_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		chunk, err := c.reader.ReadBytes('\n')
		if len(chunk) > 0 {
			c.pending = append(c.pending, chunk...)
		}
		if err != nil {
			if IsTimeout(err) && len(c.pending) > maxPendingLine {
				return nil, fmt.Errorf("message line exceeds %d bytes, stream corrupted", maxPendingLine)
			}
			return nil, err
		}

		line := c.pending
		c.pending = nil
		msg, decodeErr := Decode(line)
		if decodeErr != nil {
			c.log.WarnKV("丢弃无法解析的消息行", "remote", c.RemoteAddr(), "error", decodeErr.Error())
			continue
		}
		return msg, nil
	}
}

// 单行累积上限，超出视为流已损坏
const maxPendingLine = 16 << 20

// Close 幂等关闭底层连接
func (c *Conn) Close() error {
	if !c.closed.CAS(false, true) {
		return nil
	}
	return c.raw.Close()
}

// Closed 会话是否已关闭
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// IsTimeout 判断读写错误是否为超时（轮询 tick，非致命）
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
