// 版权所有 2024 LabelFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 管理 LabelFlow 的 GORM 连接池与写事务。

# 概述

Open 按 config.DatabaseConfig 选择方言（postgres、mysql 或纯 Go 的
glebarez sqlite）并包装为 PoolManager；OpenSQLiteMemory 为测试与
单机 run 命令提供共享内存库。

# 写入串行化

持久化会话不支持并发写入。图模式下多个分支并发计算，所有写入都经
WithWriteTransaction：一把进程内互斥锁包裹一个事务，节点状态与产物
行因此不会交错提交。WithTransactionRetry 在写锁之上对死锁、序列化
失败与 SQLite "database is locked" 做指数退避重试，引擎用它写入
终态（FAILED、执行收尾）。

# 其他

  - PoolConfig：连接数与生命周期，Validate 拒绝不一致的组合。
  - 后台健康检查定时 PingContext；GetStats 供 metrics 采样连接池指标。
*/
package database
