// Copyright (c) NPLFlow Authors.
// Licensed under the MIT License.

/*
Package auth 提供 NPL Engine 访问令牌的获取与刷新能力。

# 概述

auth 包定义 TokenSource 抽象，屏蔽静态令牌、匿名访问与 Keycloak
OAuth2 三种认证方式的差异。Keycloak 实现通过 password grant 获取
令牌，优先使用 refresh token 刷新，refresh token 失效时自动回退
到重新认证。令牌在过期前的安全余量内主动刷新，避免在途请求撞上
过期边界。

# 核心类型

  - TokenSource：令牌来源抽象，Token 返回当前令牌，
    Refresh 强制获取新令牌。
  - KeycloakSource：基于 Keycloak OpenID Connect 的实现，
    管理 access/refresh token 生命周期。
  - StaticSource：固定令牌，无法刷新。
  - AnonymousSource：匿名访问，返回空令牌。

# 主要能力

  - 密码模式认证：grant_type=password，携带 openid profile email scope。
  - 刷新模式：grant_type=refresh_token，失败时清除陈旧 refresh token
    并回退到完整认证。
  - 过期预判：优先使用 expires_in，缺失时解析 JWT exp 声明，
    在 RefreshMargin 余量内视为已过期。
  - 本地开发 Host 重写：令牌端点指向 localhost:11000 时改写
    Host 头为 keycloak:11000，适配容器网络下的 Keycloak 校验。
  - 瞬态错误重试：token 端点的网络错误与 5xx 按指数退避重试，
    凭据错误（4xx）不重试。
*/
package auth
