/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-30 11:20:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-16 10:44:27
 * @FilePath: \go-taskfarm\distributed\discovery\table.go
 * @Description: 已发现 Worker 表，按 ip:port 去重，超时剔除
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package discovery

import (
	"fmt"
	"time"

	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

// DiscoveredWorker 发现表条目，区别于已建立会话的 WorkerInfo
type DiscoveredWorker struct {
	Hostname string    `json:"hostname"`
	IP       string    `json:"ip"`
	Port     int       `json:"port"`
	LastSeen time.Time `json:"last_seen"`
}

// ID 表键 "ip:port"
func (d *DiscoveredWorker) ID() string {
	return fmt.Sprintf("%s:%d", d.IP, d.Port)
}

// Table 并发安全的发现表
type Table struct {
	entries *syncx.Map[string, *DiscoveredWorker]
}

// NewTable 创建发现表
func NewTable() *Table {
	return &Table{entries: syncx.NewMap[string, *DiscoveredWorker]()}
}

// Upsert 写入或刷新条目，返回条目和是否首次出现
func (t *Table) Upsert(hostname, ip string, port int) (*DiscoveredWorker, bool) {
	entry := &DiscoveredWorker{
		Hostname: hostname,
		IP:       ip,
		Port:     port,
		LastSeen: time.Now(),
	}
	_, existed := t.entries.Load(entry.ID())
	t.entries.Store(entry.ID(), entry)
	return entry, !existed
}

// Prune 剔除超过 maxAge 未刷新的条目，返回被剔除的键
func (t *Table) Prune(maxAge time.Duration) []string {
	deadline := time.Now().Add(-maxAge)
	var expired []string
	t.entries.Range(func(id string, entry *DiscoveredWorker) bool {
		if entry.LastSeen.Before(deadline) {
			expired = append(expired, id)
		}
		return true
	})
	for _, id := range expired {
		t.entries.Delete(id)
	}
	return expired
}

// Snapshot 拷贝当前全部条目
func (t *Table) Snapshot() map[string]*DiscoveredWorker {
	snapshot := make(map[string]*DiscoveredWorker, t.entries.Size())
	t.entries.Range(func(id string, entry *DiscoveredWorker) bool {
		clone := *entry
		snapshot[id] = &clone
		return true
	})
	return snapshot
}

// Size 条目数量
func (t *Table) Size() int {
	return t.entries.Size()
}
