// Copyright (c) LabelFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 LabelFlow 测试的共享工具和辅助函数。

# 核心能力

  - 数据库: NewTestDB 打开按测试名隔离的共享缓存内存 SQLite 并自动迁移
  - 项目: NewProject 以 t.TempDir() 作为 data_dir 创建项目
  - 图片: PNG / WriteImage 生成写入 original/ 的测试图片
  - 工作流: LinearConfig / SourcePreprocessConfig / BranchingConfig
  - 异步断言: AssertEventuallyTrue / WaitFor

# 使用示例

	pm := testutil.NewTestDB(t)
	project := testutil.NewProject(t, pm.DB())
	testutil.WriteImage(t, project, "a.png", 8, 6)
*/
package testutil
