/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-07-28 09:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-20 11:02:47
 * @FilePath: \go-taskfarm\main.go
 * @Description: 任务农场主入口
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kamalyes/go-taskfarm/bootstrap"
	"github.com/kamalyes/go-taskfarm/config"
	"github.com/kamalyes/go-taskfarm/distributed/common"
	"github.com/kamalyes/go-taskfarm/executor"
	"github.com/kamalyes/go-taskfarm/logger"
	"github.com/kamalyes/go-taskfarm/types"
)

var (
	// 基础参数
	configFile string
	mode       types.RunMode // 运行模式: master/worker

	// 日志配置
	logLevel logger.LogLevelFlag
	logFile  string
	quiet    bool
	verbose  bool

	// Master 参数
	strategy             string
	heartbeatInterval    time.Duration
	heartbeatTimeout     time.Duration
	resourcePollInterval time.Duration
	dispatchInterval     time.Duration
	autoDispatch         bool
	connectRetries       int
	connectTimeout       time.Duration
	retryBackoff         time.Duration

	// Worker 参数
	listenIP     string
	listenPort   int
	advertiseIP  string
	capabilities arrayFlags

	// 执行器参数
	cpuLimit    int
	memoryLimit int
	maxExecTime time.Duration

	// 共用参数
	ioTimeout time.Duration

	// 发现参数
	discoveryEnabled  bool
	discoveryPort     int
	broadcastInterval time.Duration
	staleTimeout      time.Duration

	// 任务提交参数
	templateName string
	scriptFile   string
	taskTypeName string
	taskData     string
	taskCount    int
	waitWorkers  int
	waitTimeout  time.Duration

	// 其他
	maxMemory      string // 进程内存阈值
	statusInterval time.Duration
)

// arrayFlags 数组flag
type arrayFlags []string

func (a *arrayFlags) String() string {
	return fmt.Sprintf("%v", *a)
}

func (a *arrayFlags) Set(value string) error {
	*a = append(*a, value)
	return nil
}

func init() {
	// 设置默认值
	mode = types.RunModeWorker
	logLevel = logger.LogLevelFlag{Level: logger.INFO}

	// 基础参数
	flag.StringVar(&configFile, "config", "", "配置文件路径 (yaml/json)")
	flag.Var(&mode, "mode", "运行模式 (master/worker)")

	// 日志配置
	flag.Var(&logLevel, "log-level", "日志级别 (debug/info/warn/error)")
	flag.StringVar(&logFile, "log-file", "", "日志文件路径")
	flag.BoolVar(&quiet, "quiet", false, "静默模式（仅错误）")
	flag.BoolVar(&verbose, "verbose", false, "详细模式（包含调试信息）")

	// Master 参数
	flag.StringVar(&strategy, "strategy", string(common.DefaultSelectStrategy), "调度策略 (round_robin/least_busy/fastest/intelligent)")
	flag.DurationVar(&heartbeatInterval, "heartbeat-interval", 5*time.Second, "心跳间隔 (默认5s)")
	flag.DurationVar(&heartbeatTimeout, "heartbeat-timeout", 15*time.Second, "心跳超时 (默认15s)")
	flag.DurationVar(&resourcePollInterval, "resource-poll-interval", 10*time.Second, "资源轮询间隔 (默认10s)")
	flag.DurationVar(&dispatchInterval, "dispatch-interval", time.Second, "自动派发扫描间隔 (默认1s)")
	flag.BoolVar(&autoDispatch, "auto-dispatch", true, "自动派发队列中的任务")
	flag.IntVar(&connectRetries, "connect-retries", 3, "连接 Worker 的重试次数 (默认3)")
	flag.DurationVar(&connectTimeout, "connect-timeout", 10*time.Second, "单次连接超时 (默认10s)")
	flag.DurationVar(&retryBackoff, "retry-backoff", 3*time.Second, "连接重试间隔 (默认3s)")

	// Worker 参数
	flag.StringVar(&listenIP, "listen-ip", "", "Worker 监听地址 (默认所有网卡)")
	flag.IntVar(&listenPort, "listen-port", 5001, "Worker 监听端口 (0表示随机)")
	flag.StringVar(&advertiseIP, "advertise-ip", "", "对外宣告的IP (默认自动探测内网IP)")
	flag.Var(&capabilities, "cap", "Worker 能力标签 (可多次使用)")

	// 执行器参数
	flag.IntVar(&cpuLimit, "cpu-limit", 100, "任务CPU使用上限百分比 (10-100)")
	flag.IntVar(&memoryLimit, "memory-limit", 1024, "任务内存上限MB (256-8192)")
	flag.DurationVar(&maxExecTime, "max-exec-time", 300*time.Second, "任务最长执行时间 (默认300s)")

	// 共用参数
	flag.DurationVar(&ioTimeout, "io-timeout", 30*time.Second, "连接读写超时 (默认30s)")

	// 发现参数
	flag.BoolVar(&discoveryEnabled, "discovery", true, "开启UDP广播自动发现")
	flag.IntVar(&discoveryPort, "discovery-port", 5000, "UDP发现端口 (默认5000)")
	flag.DurationVar(&broadcastInterval, "broadcast-interval", 3*time.Second, "Worker广播间隔 (默认3s)")
	flag.DurationVar(&staleTimeout, "stale-timeout", 15*time.Second, "发现记录过期时间 (默认15s)")

	// 任务提交参数
	flag.StringVar(&templateName, "template", "", "任务模板名 (master模式自动提交到集群,否则本地执行)")
	flag.StringVar(&scriptFile, "script", "", "任务脚本文件路径 (JavaScript)")
	flag.StringVar(&taskTypeName, "task-type", "", "任务类型 (脚本文件提交时使用)")
	flag.StringVar(&taskData, "data", "", "任务输入数据 (JSON)")
	flag.IntVar(&taskCount, "count", 1, "提交的任务份数 (默认1)")
	flag.IntVar(&waitWorkers, "wait-workers", 1, "自动提交前等待的Worker数量 (默认1)")
	flag.DurationVar(&waitTimeout, "wait-timeout", 30*time.Second, "等待Worker的超时时间 (默认30s)")

	// 其他
	flag.StringVar(&maxMemory, "max-memory", "", "进程内存阈值，超过后自动停机 (如: 1GB, 512MB)")
	flag.DurationVar(&statusInterval, "status-interval", 30*time.Second, "集群状态打印间隔 (默认30s)")
}

func main() {
	flag.Parse()

	// 初始化日志器
	initLogger(logLevel.Level)

	// 处理子命令
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "help", "-h", "--help":
			printBanner()
			printSimpleUsage()
			os.Exit(0)
		case "templates", "tmpl", "-templates":
			printBanner()
			printTemplatesHelp()
			os.Exit(0)
		case "examples", "demo", "-demo":
			printBanner()
			printExamplesHelp()
			os.Exit(0)
		case "version", "-v", "--version":
			printVersion()
			os.Exit(0)
		}
	}

	// 如果没有任何参数，显示简化帮助信息
	if len(os.Args) == 1 {
		printBanner()
		printSimpleUsage()
		os.Exit(0)
	}

	// 打印banner
	printBanner()

	// 加载配置
	cfg, err := loadFarmConfig()
	if err != nil {
		logger.Default.Fatalf("❌ 加载配置失败: %v", err)
	}
	applyFileLogLevel(cfg)

	// 根据运行模式选择执行路径
	hasTask := templateName != "" || scriptFile != ""
	switch {
	case cfg.Mode.IsMaster():
		runMasterMode(cfg, hasTask)
	case hasTask:
		runLocalMode(cfg)
	default:
		runWorkerMode(cfg)
	}
}

// loadFarmConfig 加载配置并套用命令行覆盖
func loadFarmConfig() (*config.FarmConfig, error) {
	loader := config.NewLoader()

	var cfg *config.FarmConfig
	if configFile != "" {
		logger.Default.Infof("📄 加载配置文件: %s", configFile)
		loaded, err := loader.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.DefaultFarmConfig()
	}

	applyFlagOverrides(cfg)

	// 命令行覆盖可能引入非法值，统一再验证一次
	return loader.Finalize(cfg)
}

// applyFlagOverrides 将显式指定的命令行参数覆盖到配置上
// 未显式指定的参数不触碰配置文件里的值
func applyFlagOverrides(cfg *config.FarmConfig) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = mode
		case "strategy":
			cfg.Master.SelectStrategy = common.SelectStrategy(strategy)
		case "heartbeat-interval":
			cfg.Master.HeartbeatInterval = heartbeatInterval
		case "heartbeat-timeout":
			cfg.Master.HeartbeatTimeout = heartbeatTimeout
		case "resource-poll-interval":
			cfg.Master.ResourcePollInterval = resourcePollInterval
		case "dispatch-interval":
			cfg.Master.DispatchInterval = dispatchInterval
		case "auto-dispatch":
			cfg.Master.AutoDispatch = autoDispatch
		case "connect-retries":
			cfg.Master.ConnectRetries = connectRetries
		case "connect-timeout":
			cfg.Master.ConnectTimeout = connectTimeout
		case "retry-backoff":
			cfg.Master.RetryBackoff = retryBackoff
		case "io-timeout":
			cfg.Master.IOTimeout = ioTimeout
			cfg.Worker.IOTimeout = ioTimeout
		case "listen-ip":
			cfg.Worker.ListenIP = listenIP
		case "listen-port":
			cfg.Worker.ListenPort = listenPort
		case "advertise-ip":
			cfg.Worker.AdvertiseIP = advertiseIP
		case "cap":
			cfg.Worker.Capabilities = capabilities
		case "cpu-limit":
			cfg.Worker.Executor.CPULimitPercent = cpuLimit
		case "memory-limit":
			cfg.Worker.Executor.MemoryLimitMB = memoryLimit
		case "max-exec-time":
			cfg.Worker.Executor.MaxExecutionTime = maxExecTime
		case "discovery":
			cfg.Discovery.Enabled = discoveryEnabled
		case "discovery-port":
			cfg.Discovery.Port = discoveryPort
		case "broadcast-interval":
			cfg.Discovery.BroadcastInterval = broadcastInterval
		case "stale-timeout":
			cfg.Discovery.StaleTimeout = staleTimeout
		}
	})
}

// flagWasSet 判断命令行是否显式指定了某个参数
func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// initLogger 初始化日志器
func initLogger(level logger.LogLevel) {
	config := logger.DefaultConfig()

	// 优先级：verbose > quiet > level
	switch {
	case verbose:
		config = config.WithLevel(logger.DEBUG).WithShowCaller(true).WithTimeFormat("2006-01-02 15:04:05.000")
	case quiet:
		config = config.WithLevel(logger.ERROR)
	default:
		config = config.WithLevel(level)
	}

	// 配置输出
	if logFile != "" {
		rotateWriter := logger.NewRotateWriter(logFile, 100*1024*1024, 5)
		config = config.WithOutput(rotateWriter).WithColorful(false)
	}

	logger.SetDefault(logger.NewLogger(config))
}

// applyFileLogLevel 配置文件里的 log_level 仅在命令行未显式指定时生效
func applyFileLogLevel(cfg *config.FarmConfig) {
	if flagWasSet("log-level") || verbose || quiet || cfg.LogLevel == "" {
		return
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Default.Warnf("⚠️  配置文件中的日志级别无效: %v", err)
		return
	}
	if level != logLevel.Level {
		initLogger(level)
	}
}

// runMasterMode 运行 Master 模式
func runMasterMode(cfg *config.FarmConfig, hasTask bool) {
	opts := bootstrap.MasterOptions{
		Config:         cfg.Master,
		Discovery:      cfg.Discovery,
		AutoSubmit:     hasTask, // 有任务配置时自动提交
		Template:       templateName,
		ScriptFile:     scriptFile,
		TaskType:       taskTypeName,
		Data:           taskData,
		TaskCount:      taskCount,
		WaitWorkers:    waitWorkers,
		WaitTimeout:    waitTimeout,
		StatusInterval: statusInterval,
		Logger:         logger.Default,
	}
	if err := bootstrap.RunMaster(opts); err != nil {
		logger.Default.Fatalf("❌ 运行 Master 失败: %v", err)
	}
}

// runWorkerMode 运行 Worker 模式
func runWorkerMode(cfg *config.FarmConfig) {
	opts := bootstrap.WorkerOptions{
		Config:    cfg.Worker,
		Discovery: cfg.Discovery,
		MaxMemory: maxMemory,
		Logger:    logger.Default,
	}
	if err := bootstrap.RunWorker(opts); err != nil {
		logger.Default.Fatalf("❌ 运行 Worker 失败: %v", err)
	}
}

// runLocalMode 本地执行模式
func runLocalMode(cfg *config.FarmConfig) {
	opts := bootstrap.LocalOptions{
		Template:   templateName,
		ScriptFile: scriptFile,
		TaskType:   taskTypeName,
		Data:       taskData,
		Executor:   cfg.Worker.Executor,
		Logger:     logger.Default,
	}
	if err := bootstrap.RunLocal(opts); err != nil {
		logger.Default.Fatalf("❌ 本地执行失败: %v", err)
	}
}

// printBanner 打印启动banner
func printBanner() {
	logger.Default.Info(`
╔══════════════════════════════════════════════════════════╗
║                                                          ║
║     🚜 Go Task Farm ⚡                                   ║
║                                                          ║
║     🌐 分布式任务农场                                     ║
║     🔧 Master 调度 / Worker 执行 / UDP 自动发现          ║
║     ⚙️  基于 go-toolbox 工具库                           ║
║                                                          ║
╚══════════════════════════════════════════════════════════╝
`)
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Println("go-taskfarm version 1.0.0")
	fmt.Println("分布式任务调度与执行平台")
}

// printSimpleUsage 打印简化的使用说明
func printSimpleUsage() {
	printHeader("使用方法:")
	flag.Usage()

	fmt.Println("\n常用子命令:")
	fmt.Println("  go-taskfarm help          - 显示完整帮助信息")
	fmt.Println("  go-taskfarm templates     - 显示所有内置任务模板")
	fmt.Println("  go-taskfarm examples      - 显示详细使用示例")
	fmt.Println("  go-taskfarm version       - 显示版本信息")

	fmt.Println("\n快速开始:")
	fmt.Println("  # 启动 Worker 节点（默认模式）")
	fmt.Println("  go-taskfarm -mode worker")
	fmt.Println("")
	fmt.Println("  # 启动 Master 节点")
	fmt.Println("  go-taskfarm -mode master")
	fmt.Println("")
	fmt.Println("  # Master 模式下自动提交任务到集群")
	fmt.Println("  go-taskfarm -mode master -template fibonacci -count 10")
	fmt.Println("")
	fmt.Println("  # 本地调试任务脚本")
	fmt.Println("  go-taskfarm -template fibonacci -data '{\"n\": 20}'")

	fmt.Println("\n💡 提示: 使用 'go-taskfarm templates' 查看所有内置任务模板")
	fmt.Println("💡 提示: 使用 'go-taskfarm examples' 查看详细示例")
}

// printTemplatesHelp 打印内置任务模板帮助
func printTemplatesHelp() {
	printHeader("内置任务模板:")
	fmt.Println("  任务代码为 JavaScript，可通过 require 引入内置模块 (math/json/random/time/strings/base64/crypto)")
	fmt.Println("  使用 -template <名称> 直接执行，-data 传入 JSON 覆盖示例数据")
	fmt.Println("")

	for _, name := range executor.TemplateNames() {
		tpl, _ := executor.LookupTemplate(name)
		fmt.Printf("  %-24s [%s]\n", name, tpl.Type)
		fmt.Printf("    %s\n", tpl.Description)
		if len(tpl.SampleData) > 0 {
			if sample, err := json.Marshal(tpl.SampleData); err == nil {
				fmt.Printf("    示例数据: %s\n", sample)
			}
		}
		fmt.Println("")
	}

	fmt.Println("💡 本地试运行: go-taskfarm -template hello_world")
	fmt.Println("💡 提交到集群: go-taskfarm -mode master -template hello_world")
}

// printExamplesHelp 打印示例帮助
func printExamplesHelp() {
	printHeader("基本示例:")
	printExamples()

	printHeader("配置文件示例 (farm.yaml):")
	printConfigExample()

	fmt.Println("\n更多示例:")
	fmt.Println("  # 指定调度策略")
	fmt.Println("  go-taskfarm -mode master -strategy least_busy")
	fmt.Println("")
	fmt.Println("  # Worker 限制任务资源")
	fmt.Println("  go-taskfarm -mode worker -cpu-limit 50 -memory-limit 512")
	fmt.Println("")
	fmt.Println("  # 关闭自动发现，固定端口部署")
	fmt.Println("  go-taskfarm -mode worker -discovery=false -listen-port 5001")
	fmt.Println("")
	fmt.Println("  # 进程内存阈值，超过后自动停机")
	fmt.Println("  go-taskfarm -mode worker -max-memory 1GB")
	fmt.Println("")
	fmt.Println("  # 本地执行自定义脚本")
	fmt.Println("  go-taskfarm -script my_task.js -data '{\"n\": 42}'")
}

func printHeader(title string) {
	fmt.Println("\n" + title)
}

func printExamples() {
	examples := []string{
		"# 启动 Worker（自动广播，等待 Master 纳管）",
		"go-taskfarm -mode worker",
		"",
		"# 启动 Master（自动发现并连接 Worker）",
		"go-taskfarm -mode master",
		"",
		"# 提交 10 份斐波那契任务到集群",
		"go-taskfarm -mode master -template fibonacci -count 10",
		"",
		"# 使用配置文件",
		"go-taskfarm -config farm.yaml",
		"",
		"# 本地调试任务脚本（不经过网络）",
		"go-taskfarm -script my_task.js -data '{\"rounds\": 3}'",
		"",
		"# 能力标签限定 Worker 接什么类型的任务",
		"go-taskfarm -mode worker -cap computation -cap machine_learning",
	}
	for _, example := range examples {
		fmt.Println(example)
	}
}

func printConfigExample() {
	fmt.Println("mode: worker")
	fmt.Println("log_level: info")
	fmt.Println("master:")
	fmt.Println("  select_strategy: intelligent")
	fmt.Println("  heartbeat_interval: 5s")
	fmt.Println("  heartbeat_timeout: 15s")
	fmt.Println("  auto_dispatch: true")
	fmt.Println("worker:")
	fmt.Println("  listen_port: 5001")
	fmt.Println("  capabilities:")
	fmt.Println("    - computation")
	fmt.Println("    - data_analysis")
	fmt.Println("  executor:")
	fmt.Println("    cpu_limit_percent: 100")
	fmt.Println("    memory_limit_mb: 1024")
	fmt.Println("    max_execution_time: 300s")
	fmt.Println("discovery:")
	fmt.Println("  enabled: true")
	fmt.Println("  port: 5000")
}
