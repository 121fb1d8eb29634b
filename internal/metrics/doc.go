// Copyright (c) FlowGrid Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
工作流运行、节点执行、HTTP、脚本缓存与子工作流五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。
Collector 实现 flow.Observer 接口，直接挂到调度器上。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - 运行指标：运行总数、运行耗时、单次运行执行的节点数，
    按最终状态分组。
  - 节点指标：执行总数与执行耗时，按 node_type/state 分组。
  - HTTP 指标：请求总数、请求耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 子工作流指标：触发调用总数，按 status 分组。
*/
package metrics
