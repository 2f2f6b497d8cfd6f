// 版权所有 2025 NPLFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供检查服务器的 HTTP 生命周期管理。

serve 命令运行两个服务器实例：API 服务器（/health、/ready、/tools）
与指标服务器（/metrics）。Manager 封装 net/http.Server，统一非阻塞
启动、实际监听地址查询、优雅关闭与信号等待。

# 核心类型

  - Manager：单个 HTTP 服务器的生命周期管理器，按名称区分实例，
    提供 Start/Shutdown/WaitForShutdown/Errors。
  - Config：监听地址、读写与空闲超时、请求头上限、优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start 先行完成监听，服务循环在后台 goroutine 运行，
    监听失败同步返回。
  - 地址查询：Addr 在启动后返回监听器实际绑定的地址，":0" 随机端口
    对测试友好。
  - 优雅关闭：Shutdown 在配置超时内排空在途请求，重复调用为空操作，
    关闭后的实例不可重启。
  - 信号等待：WaitForShutdown 监听 SIGINT/SIGTERM 与异步服务错误，
    返回导致退出的错误供进程决定退出码。
*/
package server
