/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-28 10:02:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-02 11:47:30
 * @FilePath: \go-taskfarm\distributed\common\strategy.go
 * @Description: Worker 选择策略枚举定义
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package common

// SelectStrategy Worker 选择策略
type SelectStrategy string

const (
	SelectStrategyRoundRobin  SelectStrategy = "round_robin" // 轮询，游标跨调用保持
	SelectStrategyLeastBusy   SelectStrategy = "least_busy"  // 活跃任务数最少
	SelectStrategyFastest     SelectStrategy = "fastest"     // 测量延迟最低
	SelectStrategyIntelligent SelectStrategy = "intelligent" // 资源/延迟/负载加权评分
)

// DefaultSelectStrategy 默认选择策略
const DefaultSelectStrategy = SelectStrategyIntelligent

// IsValid 校验策略取值
func (s SelectStrategy) IsValid() bool {
	switch s {
	case SelectStrategyRoundRobin, SelectStrategyLeastBusy,
		SelectStrategyFastest, SelectStrategyIntelligent:
		return true
	}
	return false
}
