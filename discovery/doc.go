// 版权所有 2025 NPLFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 discovery 发现 NPL Engine 上可用的逻辑包。

按优先级依次尝试三种策略：

 1. 抓取引擎的 swagger 索引页，从中提取
    /npl/{package}/-/openapi.json 形式的引用（主策略，零配置）
 2. 读取 npl-packages.json 配置文件（当前目录、public/ 子目录、
    可执行文件所在目录）
 3. 读取 NPL_PACKAGES 环境变量（逗号分隔）

任一策略产出非空包列表即停止；三种策略全部失败时返回
PACKAGE_DISCOVERY 错误，错误信息逐一指明排查方向。
*/
package discovery
