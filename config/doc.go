// Package config 提供 NPLFlow 的配置管理功能。
//
// 支持从 YAML 文件与环境变量加载配置，并兼容 NPL CLI
// 使用的 NPL_* 环境变量。认证方式可根据已提供的凭据自动推断。
package config
