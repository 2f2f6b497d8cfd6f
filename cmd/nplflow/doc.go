// Copyright (c) NPLFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 NPLFlow 桥接服务程序入口。

# 概述

cmd/nplflow 是 NPL Engine 桥接的可执行入口，提供检查 HTTP API、
工具声明导出、引擎健康探测和版本查询等子命令。程序支持 YAML 配置
文件加载、NPL_* 兼容环境变量、结构化日志（zap）、Prometheus 指标
采集与 OpenTelemetry 追踪。

# 核心类型

  - Server         — 桥接服务器，管理 API、Metrics 双端口及优雅关闭，
    内部通过根包 nplflow.New 装配完整编译链路
  - HealthHandler  — /health（活性 + 运行快照）与 /ready（依赖探测）
  - ToolsHandler   — /tools 与 /tools/{name} 工具检查端点
  - Middleware     — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、tools（编译并打印工具声明 JSON）、
    health（引擎 /actuator/health 探测）、version
  - 中间件链：Recovery、RequestID（uuid）、OTelTracing、
    RequestLogger、MetricsMiddleware、RateLimiter（基于 IP）
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 API → 关闭 Metrics → 释放缓存后端
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
