// Copyright (c) NPLFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 nplflow 的全局共享类型定义。

# 概述

types 是模块最底层的公共包，不依赖任何内部包，为 engine、tools、
auth、discovery 等上层模块提供统一的类型契约。所有跨包共享的
结构体、枚举和错误码均定义于此，以避免循环依赖。

# 核心类型

  - Error / ErrorCode     — 结构化错误体系，含 HTTP 状态码、URL、
    响应体、尝试次数与 Retryable 标记
  - ParameterDescriptor   — 扁平化后的工具参数描述（名称、类型、
    必填、可空、枚举、格式）
  - PartyDescriptor       — @parties 授权角色描述（角色名 + 必填）
  - Tool                  — 合成后的可调用工具（声明 + 通用 Invoke 入口）
  - ToolResult            — 工具调用结果（成功负载或 error + hint）
  - ToolSchema            — 面向调用框架的 JSON Schema 工具声明

# 主要能力

  - 错误工具链：NewError / WithCause / WithHTTPStatus / WithURL /
    WithResponseBody / WithAttempt / WithRetryable
  - 错误判定：IsRetryable / GetErrorCode / IsErrorCode / AsError
  - 工具调用：Tool.Invoke 捕获一切失败并返回结构化结果，
    绝不向调用框架抛出异常
  - 声明导出：Tool.Declaration 将参数描述渲染为 JSON Schema
*/
package types
