// Copyright 2026 NPLFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 NPLFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。所有测试应优先使用此包
中的工具函数和 Mock 实现。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertErrorCode / AssertJSONEqual，
    针对错误码分类与 JSON 表示的断言
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual，
    支持超时轮询等待条件满足
  - 数据工具: MustJSON / MustParseJSON / ToolNames / FindTool，
    简化测试数据构造与工具列表检查
  - 引擎桩: EngineStub，可配置的 NPL 引擎 HTTP 替身，
    支持 OpenAPI 文档、swagger 索引、健康检查、鉴权校验、
    故障注入与请求记录

# 子包

  - testutil/mocks: Mock 实现，包括 MockTokenSource（令牌来源）、
    MockStore（文档缓存）、MockLister（包发现），
    均支持 Builder 模式与错误注入
  - testutil/fixtures: 测试数据工厂，提供预置 OpenAPI 文档
    与 Keycloak 令牌响应样例

# 使用示例

	ctx := testutil.TestContext(t)
	stub := testutil.NewEngineStub(t).WithDocument("iou", fixtures.IouDocument())
	client := engine.NewClient(engine.Config{BaseURL: stub.URL()}, nil, nil, zap.NewNop())
*/
package testutil
