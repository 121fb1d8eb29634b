// Copyright (c) FlowGrid Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的脚本结果缓存，供多个引擎进程共享同一份
求值结果，支持连接池、TTL 与健康检查。

# 概述

本包封装 go-redis 客户端。Manager 负责连接生命周期管理，包括初始化、
后台健康检查与优雅关闭；ResultCache 在 Manager 之上实现
scriptlet.ResultCache 接口，按 (代码, 输入) 指纹键读写 JSON 序列化的
求值结果。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端与连接池配置，
    提供 GetJSON/SetJSON/Delete/Ping 等基础操作。
  - ResultCache：脚本结果缓存适配器，带键前缀与默认 TTL，
    可直接注入 scriptlet.Evaluator。
  - Config：缓存配置，包含地址、密码、连接池大小、默认 TTL
    与健康检查间隔等参数。

# 主要能力

  - 结果共享：函数节点开启 cacheResults 后，相同代码与输入的
    求值结果跨进程复用。
  - 连接池管理：通过 PoolSize 与 MinIdleConns 控制连接复用。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警。
  - 错误语义：提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
