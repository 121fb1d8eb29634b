// Copyright (c) FlowGrid Authors.
// Licensed under the MIT License.

// Package tracestore 提供运行轨迹的 SQLite 存档。
//
// 每次工作流运行结束后，调度器产出的 RunTrace 会被序列化为一条
// RunRecord 持久化到本地 SQLite 文件，供回放、排障与审计查询。
// 存档是追加式的，通过 Prune 控制保留窗口。
//
// 主要功能：
//   - Save: 存档一次运行的完整轨迹（结果、节点状态、执行顺序）
//   - Get / ListByWorkflow: 按运行或工作流维度查询
//   - Prune: 按保留条数淘汰旧记录
//
// 使用示例：
//
//	store, err := tracestore.Open("flowgrid.db", logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	trace, _ := scheduler.Run(ctx, graph, input, flow.RunOptions{})
//	_ = store.Save(ctx, trace)
package tracestore
