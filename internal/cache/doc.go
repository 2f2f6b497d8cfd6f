// 版权所有 2025 NPLFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供 OpenAPI 规范与编译产物的 TTL 缓存能力，
支持内存与 Redis 两种后端。

# 概述

本包为工具编译管线提供缓存层。OpenAPI 规范文档以 JSON 形式存入
Store（内存或 Redis），编译后的工具集存入进程内的 TTLCache。
过期条目在访问时惰性清除，不运行后台清理协程。

# 核心类型

  - Store：JSON 字节缓存接口，提供 Get/Set/Delete/Clear，
    Redis 实现支持键前缀隔离与连接生命周期管理。
  - TTLCache：进程内泛型 TTL 缓存，用于存放不可序列化的
    编译产物（工具集携带闭包处理器）。
  - Config：Redis 后端配置，包含地址、密码、连接池大小与默认 TTL。

# 主要能力

  - 惰性过期：Get 访问到过期条目时当场删除并返回未命中。
  - 双后端：内存后端零依赖，Redis 后端跨进程共享规范文档。
  - 类型安全：GetTyped/SetTyped 泛型包装自动处理 JSON 序列化。
  - 错误语义：未命中通过 (value, false, nil) 表达，不产生错误。
*/
package cache
