// Copyright (c) FlowGrid Authors.
// Licensed under the MIT License.

// Package handlers 实现工作流服务的 HTTP 处理器。
//
// 包含触发端点（含服务端循环依赖兜底检查）、健康检查、
// 运行事件 WebSocket 流，以及记录请求指标的中间件。
package handlers
