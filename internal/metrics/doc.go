// 版权所有 2025 NPLFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
Engine 传输、重试、令牌刷新、缓存与工具调用五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。
除 Prometheus 指标外，Collector 还维护一个容量固定的最近错误
环形缓冲，供诊断端点查询。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。
  - ErrorRecord：最近错误记录，包含时间戳、类型、消息与上下文。
  - Snapshot：运行状态快照，聚合启动时长、请求计数、延迟采样
    与最近错误，供检查端点以 JSON 输出。

# 主要能力

  - Engine 指标：请求总数与请求耗时，按 method/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx；重试计数按原因分组。
  - 令牌指标：刷新总数按结果（success/failure/coalesced）分组。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 工具指标：每包编译产出 Gauge、调用总数与调用耗时，
    按 tool/status 分组。
  - 发现指标：包发现尝试计数，按 strategy/status 分组。
  - HTTP 指标：检查服务自身的请求计数与耗时，按归一化路径分组。
  - 错误环形缓冲：保留最近 100 条错误，先进先出淘汰；
    延迟采样环保留最近 100 次 Engine 请求耗时。
*/
package metrics
