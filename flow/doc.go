// Copyright (c) FlowGrid Authors.
// Licensed under the MIT License.

/*
Package flow 提供可视化工作流的执行核心。

# 概述

flow 包实现 FlowGrid 的图执行引擎：按数据依赖调度节点、沿带标签的边
路由输出（success/error、true/false）、施加节点级超时、检测并拒绝
子工作流循环调用，并汇总完整的执行轨迹。

# 核心接口与类型

  - Envelope            — 边上流动的标准数据单元（items + meta）
  - Executor            — 节点执行契约 Execute(ctx, config, inputs)
  - Registry            — 按类型字符串注册的执行器注册表
  - Graph / GraphEdge   — 画布图模型（节点 + 带端口标签的边）
  - GraphBuilder        — Fluent API 构建图
  - Scheduler           — 图调度器（就绪队列、确定性拓扑执行）
  - Router              — 分支路由器（每次执行恰好选中一个输出端口）
  - CallStack           — 子工作流调用栈（不可变、追加复制）
  - RunTrace            — 运行轨迹（nodeId → Envelope + 总体状态）
  - WithTimeout         — 统一的节点超时保护

# 内置节点类型

  - trigger             — 入口节点，透传初始输入
  - decision            — 条件分支（true/false/error 三个输出端口）
  - function            — 用户脚本（throw/return/null 错误策略，结果缓存）
  - transform           — 按序应用具名转换表达式，失败短路
  - subworkflow         — 触发嵌套工作流（调用栈循环检测 + 超时）
*/
package flow
