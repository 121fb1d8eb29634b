// Copyright (c) FlowGrid Authors.
// Licensed under the MIT License.

// FlowGrid 服务入口：加载配置、装配执行引擎与 HTTP 边界并启动服务。
package main
