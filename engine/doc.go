// 版权所有 2025 NPLFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 engine 提供 NPL Engine 的弹性 HTTP 客户端，负责认证注入、
重试退避、令牌刷新合并与结构化错误分类。

# 概述

NPL Engine 暴露的所有远程操作（OpenAPI 文档获取、协议实例创建、
动作执行、实例查询）都经由本包的 Client 完成。Client 对每次逻辑
调用维护一个有界的重试状态机：网络故障与 429/5xx 按指数退避重试，
401 触发令牌刷新后立即重试，其他 4xx 立即终止。刷新与普通重试
共享同一重试预算，保证最坏情况下的尝试次数恒为 MaxRetries+1。

# 核心类型

  - Client：并发安全的引擎客户端，可被多个调用方共享
  - Request / Response：一次引擎调用的描述与结果
  - Config：基础地址、超时与重试策略

# 主要能力

  - 令牌注入：每次尝试前从 auth.TokenSource 取令牌，空令牌表示匿名
  - 刷新合并：并发调用遇到 401 时至多触发一次实际刷新，
    其余调用复用刷新结果
  - 错误分类：终态失败映射为 AUTH_EXPIRED / SERVICE_UNAVAILABLE /
    CLIENT_ERROR / TRANSPORT_ERROR 四类结构化错误
  - 指标上报：每次尝试上报计数与时延，终态失败追加错误记录

使用示例：

	client := engine.NewClient(engine.Config{BaseURL: "http://localhost:12000"},
		auth.NewStaticSource(token), collector, logger)
	doc, err := client.FetchOpenAPI(ctx, "iou")
*/
package engine
