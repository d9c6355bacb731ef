/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-05 14:32:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-21 19:31:52
 * @FilePath: \go-taskfarm\distributed\discovery\table_test.go
 * @Description: 发现表测试
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestTableUpsertNew 测试首次写入
func TestTableUpsertNew(t *testing.T) {
	table := NewTable()

	entry, isNew := table.Upsert("worker-host", "192.168.1.10", 5001)
	assert.True(t, isNew)
	assert.Equal(t, "192.168.1.10:5001", entry.ID())
	assert.Equal(t, "worker-host", entry.Hostname)
	assert.Equal(t, 1, table.Size())
}

// TestTableUpsertRefresh 测试重复写入只刷新不新增
func TestTableUpsertRefresh(t *testing.T) {
	table := NewTable()

	first, isNew := table.Upsert("worker-host", "192.168.1.10", 5001)
	assert.True(t, isNew)
	firstSeen := first.LastSeen

	time.Sleep(10 * time.Millisecond)
	second, isNew := table.Upsert("renamed-host", "192.168.1.10", 5001)
	assert.False(t, isNew, "同一 ip:port 不算新发现")
	assert.Equal(t, 1, table.Size())
	assert.Equal(t, "renamed-host", second.Hostname, "刷新时主机名取最新广播")
	assert.True(t, second.LastSeen.After(firstSeen))
}

// TestTableDifferentPortsAreDistinct 测试同 IP 不同端口为独立条目
func TestTableDifferentPortsAreDistinct(t *testing.T) {
	table := NewTable()

	table.Upsert("h", "192.168.1.10", 5001)
	table.Upsert("h", "192.168.1.10", 5002)
	assert.Equal(t, 2, table.Size())
}

// TestTablePrune 测试超时剔除
func TestTablePrune(t *testing.T) {
	table := NewTable()

	stale, _ := table.Upsert("stale", "192.168.1.10", 5001)
	stale.LastSeen = time.Now().Add(-time.Minute)
	table.Upsert("fresh", "192.168.1.11", 5001)

	expired := table.Prune(15 * time.Second)
	assert.Equal(t, []string{"192.168.1.10:5001"}, expired)
	assert.Equal(t, 1, table.Size())

	// 再次剔除无变化
	assert.Empty(t, table.Prune(15*time.Second))
}

// TestTableSnapshotIsolated 测试快照与表解耦
func TestTableSnapshotIsolated(t *testing.T) {
	table := NewTable()
	table.Upsert("h", "192.168.1.10", 5001)

	snapshot := table.Snapshot()
	assert.Equal(t, 1, len(snapshot))

	snapshot["192.168.1.10:5001"].Hostname = "mutated"
	fresh := table.Snapshot()
	assert.Equal(t, "h", fresh["192.168.1.10:5001"].Hostname, "快照修改不应影响表内条目")
}
