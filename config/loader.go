/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-03 09:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\config\loader.go
 * @Description: 配置加载器
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-taskfarm/types"
	"github.com/kamalyes/go-toolbox/pkg/mathx"
	"gopkg.in/yaml.v3"
)

// FarmConfig 节点运行配置，按 Mode 取用对应小节
type FarmConfig struct {
	Mode      types.RunMode           `json:"mode" yaml:"mode"`
	LogLevel  string                  `json:"log_level" yaml:"log_level"`
	Master    *common.MasterConfig    `json:"master" yaml:"master"`
	Worker    *common.WorkerConfig    `json:"worker" yaml:"worker"`
	Discovery *common.DiscoveryConfig `json:"discovery" yaml:"discovery"`
}

// DefaultFarmConfig 默认配置：Worker 模式 + 各小节默认值
func DefaultFarmConfig() *FarmConfig {
	return &FarmConfig{
		Mode:      types.RunModeWorker,
		LogLevel:  "info",
		Master:    common.DefaultMasterConfig(),
		Worker:    common.DefaultWorkerConfig(),
		Discovery: common.DefaultDiscoveryConfig(),
	}
}

// Loader 配置加载器
type Loader struct{}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFromFile 从文件加载配置
func (l *Loader) LoadFromFile(path string) (*FarmConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// filepath.Ext 返回 ".yaml" / ".yml" / ".json"，去掉前缀点号
	ext := filepath.Ext(path)
	if len(ext) > 0 {
		ext = ext[1:] // ".yaml" -> "yaml"
	}
	return l.LoadFromBytes(data, ext)
}

// LoadFromBytes 从字节数据加载配置（支持 YAML 和 JSON）
// 反序列化作用在默认配置之上，缺省字段保留默认值
func (l *Loader) LoadFromBytes(data []byte, format string) (*FarmConfig, error) {
	config := DefaultFarmConfig()

	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("解析YAML配置失败: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("解析JSON配置失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置格式: %s (仅支持yaml/yml/json)", format)
	}

	return l.processConfig(config)
}

// Finalize 补全默认值并重新验证，供命令行参数覆盖配置后调用
func (l *Loader) Finalize(config *FarmConfig) (*FarmConfig, error) {
	return l.processConfig(config)
}

// processConfig 处理配置（小节补全、验证）
func (l *Loader) processConfig(config *FarmConfig) (*FarmConfig, error) {
	l.fillDefaults(config)

	if err := l.validate(config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return config, nil
}

// fillDefaults 补全缺失小节与关键字段
func (l *Loader) fillDefaults(config *FarmConfig) {
	config.LogLevel = mathx.IfEmpty(config.LogLevel, "info")

	if config.Master == nil {
		config.Master = common.DefaultMasterConfig()
	}
	if config.Worker == nil {
		config.Worker = common.DefaultWorkerConfig()
	}
	if config.Worker.Executor == nil {
		config.Worker.Executor = common.DefaultExecutorConfig()
	}
	if config.Discovery == nil {
		config.Discovery = common.DefaultDiscoveryConfig()
	}

	defaults := common.DefaultMasterConfig()
	m := config.Master
	m.SelectStrategy = common.SelectStrategy(mathx.IfEmpty(string(m.SelectStrategy), string(defaults.SelectStrategy)))
	m.HeartbeatInterval = mathx.IfNotZero(m.HeartbeatInterval, defaults.HeartbeatInterval)
	m.HeartbeatTimeout = mathx.IfNotZero(m.HeartbeatTimeout, defaults.HeartbeatTimeout)
	m.ResourcePollInterval = mathx.IfNotZero(m.ResourcePollInterval, defaults.ResourcePollInterval)
	m.DispatchInterval = mathx.IfNotZero(m.DispatchInterval, defaults.DispatchInterval)
	m.ConnectRetries = mathx.IfNotZero(m.ConnectRetries, defaults.ConnectRetries)
	m.ConnectTimeout = mathx.IfNotZero(m.ConnectTimeout, defaults.ConnectTimeout)
	m.IOTimeout = mathx.IfNotZero(m.IOTimeout, defaults.IOTimeout)
	m.RetryBackoff = mathx.IfNotZero(m.RetryBackoff, defaults.RetryBackoff)

	workerDefaults := common.DefaultWorkerConfig()
	w := config.Worker
	w.IOTimeout = mathx.IfNotZero(w.IOTimeout, workerDefaults.IOTimeout)
	if len(w.Capabilities) == 0 {
		w.Capabilities = workerDefaults.Capabilities
	}

	discoveryDefaults := common.DefaultDiscoveryConfig()
	d := config.Discovery
	d.Port = mathx.IfNotZero(d.Port, discoveryDefaults.Port)
	d.BroadcastInterval = mathx.IfNotZero(d.BroadcastInterval, discoveryDefaults.BroadcastInterval)
	d.StaleTimeout = mathx.IfNotZero(d.StaleTimeout, discoveryDefaults.StaleTimeout)

	// 执行器上限在 Normalize 内收敛，这里不重复处理
	config.Worker.Executor.Normalize()
}

// validate 验证配置
func (l *Loader) validate(config *FarmConfig) error {
	if config.Mode != types.RunModeMaster && config.Mode != types.RunModeWorker {
		return fmt.Errorf("无效的运行模式: %s (仅支持 master/worker)", config.Mode)
	}

	if !config.Master.SelectStrategy.IsValid() {
		return fmt.Errorf("无效的选择策略: %s", config.Master.SelectStrategy)
	}

	if config.Mode == types.RunModeWorker {
		if config.Worker.ListenPort < 0 || config.Worker.ListenPort > 65535 {
			return fmt.Errorf("无效的监听端口: %d", config.Worker.ListenPort)
		}
	}

	if config.Discovery.Enabled {
		if config.Discovery.Port <= 0 || config.Discovery.Port > 65535 {
			return fmt.Errorf("无效的发现端口: %d", config.Discovery.Port)
		}
	}

	return nil
}
