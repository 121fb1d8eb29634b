// Copyright (c) FlowGrid Authors.
// Licensed under the MIT License.

// Package api 定义工作流触发边界的 HTTP 协议。
//
// 子工作流节点通过 POST /api/workflows/{id}/trigger 调用另一条工作流，
// 请求体携带输入数据、调用栈（_callStack）与来源元信息。本包同时提供：
//   - 协议类型（TriggerRequest / TriggerError）
//   - Client: flow.SubworkflowDelegate 的 HTTP 实现，带限流
//
// 服务端处理器见子包 handlers。
package api
