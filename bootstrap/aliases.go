/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-29 08:40:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 21:52:13
 * @FilePath: \go-taskfarm\bootstrap\aliases.go
 * @Description: 类型别名统一管理
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package bootstrap

import (
	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-taskfarm/types"
)

// 运行模式别名
type (
	RunMode = types.RunMode
)

// 运行模式常量
const (
	RunModeMaster = types.RunModeMaster
	RunModeWorker = types.RunModeWorker
)

// 调度策略别名
type (
	SelectStrategy = common.SelectStrategy
)

// 调度策略常量
const (
	SelectStrategyRoundRobin  = common.SelectStrategyRoundRobin
	SelectStrategyLeastBusy   = common.SelectStrategyLeastBusy
	SelectStrategyFastest     = common.SelectStrategyFastest
	SelectStrategyIntelligent = common.SelectStrategyIntelligent
)

// 任务类型别名
type (
	TaskType = common.TaskType
)

// 任务类型常量
const (
	TaskTypeCustom          = common.TaskTypeCustom
	TaskTypeComputation     = common.TaskTypeComputation
	TaskTypeImageProcessing = common.TaskTypeImageProcessing
	TaskTypeDataAnalysis    = common.TaskTypeDataAnalysis
	TaskTypeSystemCheck     = common.TaskTypeSystemCheck
	TaskTypeNetworkTest     = common.TaskTypeNetworkTest
	TaskTypeTextAnalysis    = common.TaskTypeTextAnalysis
	TaskTypeMachineLearning = common.TaskTypeMachineLearning
	TaskTypeAPIRequest      = common.TaskTypeAPIRequest
)
