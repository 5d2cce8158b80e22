// Copyright (c) LabelFlow Authors.
// Licensed under the MIT License.

/*
包 cache 提供工作流执行锁与终态状态缓存。

# 核心类型

  - Locker：执行锁接口，Acquire 返回只释放自身持有锁的 Release。
  - MemoryLocker：进程内实现，单实例部署与测试使用。
  - Manager：基于 go-redis 的实现，锁使用 SET NX PX 加持有者令牌，
    释放通过 Lua 脚本比较后删除；同时提供 GetJSON/SetJSON 状态缓存。

# 错误语义

  - ErrLockHeld：锁已被其他持有者占用。
  - ErrCacheMiss：缓存未命中，可用 IsCacheMiss 判断。
  - ErrClosed：管理器已关闭。

所有键以 RedisConfig.KeyPrefix 为前缀，可选 TLS 连接。
*/
package cache
