// Copyright 2025-2026 NPLFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package tools 实现 schema 驱动的工具编译器：从 NPL Engine 的
OpenAPI 文档发现远程操作，解析并展开其 JSON Schema 定义，
合成带有显式参数列表、可自省、可直接调用的工具。

引擎上的操作在编译期不可知，调用框架也无法从一个笼统的参数袋里
读出参数：工具必须携带可发现、命名、有类型的输入描述。本包把
一份运行时拉取的 OpenAPI 文档变成一组这样的工具。

# 核心接口/类型

  - Resolver — 在单个 OpenAPI 文档内解析 #/components/schemas 引用
  - Flattener — 将嵌套请求体 schema 展开为扁平有序的参数描述符，
    提取 @parties 授权角色；Unflatten 为其逆变换
  - Synthesizer — 由参数描述符合成创建/动作工具（必填在前排序、
    文档模板、参与方声明重组、嵌套结构还原）
  - Compiler — 编排发现流程：拉取文档（带缓存）、分类路径、
    驱动 Flattener 与 Synthesizer 产出工具列表
  - PackageLister — 包发现的依赖注入点

# 主要能力

  - 嵌套展开：引用对象以 前缀_ 连接递归展开，参数名全局唯一，
    重名时该操作的发现失败并给出明确诊断
  - 必填/可空策略：声明必填但可空的参数按可选处理
  - 参与方参数：每个角色展开为 {role}_organization 与
    {role}_department 两个授权声明参数
  - 部分失败容忍：单个包或单个操作的失败被记录并跳过，
    全部包为空时才整体失败
  - 缓存：工具列表与 OpenAPI 文档分别按 TTL 缓存，支持强制刷新
*/
package tools
