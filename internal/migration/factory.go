package migration

import (
	"fmt"
	"strings"

	"github.com/BaSui01/labelflow/config"
)

// FromConfig 复用运行时的数据库配置创建 Migrator，迁移与服务连接同一个库
func FromConfig(dbCfg config.DatabaseConfig) (*Migrator, error) {
	dialect, err := ParseDialect(dbCfg.Driver)
	if err != nil {
		return nil, err
	}
	dbCfg.Driver = string(dialect)
	return New(dialect, migrationDSN(dialect, dbCfg.DSN()))
}

// FromURL 用命令行给出的驱动名与连接串创建 Migrator
func FromURL(driver, url string) (*Migrator, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	return New(dialect, migrationDSN(dialect, url))
}

// migrationDSN 补齐迁移文件需要的连接参数：MySQL 的迁移脚本含多条语句
func migrationDSN(dialect Dialect, dsn string) string {
	if dialect != DialectMySQL || strings.Contains(dsn, "multiStatements=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%smultiStatements=true", dsn, sep)
}
