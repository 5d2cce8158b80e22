package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// sqlite 连接走纯 Go 驱动（注册名 "sqlite"），迁移驱动只使用其 *sql.DB
	_ "github.com/glebarez/go-sqlite"
)

// =============================================================================
// 📦 内嵌迁移文件
// =============================================================================

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/mysql/*.sql
var mysqlFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// VersionTable 记录 schema 版本的表名
const VersionTable = "schema_migrations"

// Tables 是迁移负责创建的 LabelFlow 表，按外键依赖排序
var Tables = []string{
	"project",
	"task",
	"workflow",
	"workflow_execution",
	"workflow_node_execution",
	"data",
	"processed_data",
}

// =============================================================================
// 🗄️ 方言
// =============================================================================

// Dialect 数据库方言，与 config.DatabaseConfig.Driver 同值
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect 解析驱动名，接受常见别名
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %q", s)
	}
}

func (d Dialect) files() (fs.FS, string) {
	switch d {
	case DialectPostgres:
		return postgresFS, "migrations/postgres"
	case DialectMySQL:
		return mysqlFS, "migrations/mysql"
	default:
		return sqliteFS, "migrations/sqlite"
	}
}

// tableQuery 按方言查询某表是否存在
func (d Dialect) tableQuery() string {
	switch d {
	case DialectPostgres:
		return "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
	case DialectMySQL:
		return "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	default:
		return "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?"
	}
}

// =============================================================================
// 🔧 Migrator
// =============================================================================

// Migration 单个迁移文件的应用状态
type Migration struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Report 汇总 schema 版本与 LabelFlow 表的存在情况
type Report struct {
	Version    uint
	Dirty      bool
	Migrations []Migration
	// Missing 为尚未创建的 LabelFlow 表
	Missing []string
}

// Pending 返回未应用的迁移数
func (r *Report) Pending() int {
	n := 0
	for _, m := range r.Migrations {
		if !m.Applied {
			n++
		}
	}
	return n
}

// Migrator 基于 golang-migrate 管理 LabelFlow schema 版本
type Migrator struct {
	dialect Dialect
	db      *sql.DB
	migrate *migrate.Migrate
}

// New 按方言打开连接并装配内嵌迁移文件
func New(dialect Dialect, url string) (*Migrator, error) {
	if url == "" {
		return nil, errors.New("database URL is required")
	}

	// 驱动注册名与方言同值：lib/pq "postgres"、go-sql-driver "mysql"、glebarez "sqlite"
	db, err := sql.Open(string(dialect), url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := versionDriver(dialect, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	fsys, dir := dialect.files()
	src, err := iofs.New(fsys, dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	mg.LockTimeout = 15 * time.Second

	return &Migrator{dialect: dialect, db: db, migrate: mg}, nil
}

func versionDriver(dialect Dialect, db *sql.DB) (database.Driver, error) {
	switch dialect {
	case DialectPostgres:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: VersionTable})
	case DialectMySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: VersionTable})
	case DialectSQLite:
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: VersionTable})
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", dialect)
	}
}

// Up 应用全部未执行的迁移
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down 回滚最近一次迁移
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.migrate.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Reset 回滚全部迁移，LabelFlow 表与数据一并删除
func (m *Migrator) Reset(ctx context.Context) error {
	if err := m.migrate.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration reset failed: %w", err)
	}
	return nil
}

// Goto 迁移到指定版本
func (m *Migrator) Goto(ctx context.Context, version uint) error {
	if err := m.migrate.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration goto failed: %w", err)
	}
	return nil
}

// Force 只改写版本号并清除 dirty 标记，不执行 SQL
func (m *Migrator) Force(ctx context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	return nil
}

// Version 返回当前版本；尚未迁移时为 0
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Report 汇总版本、各迁移文件状态与缺失的 LabelFlow 表
func (m *Migrator) Report(ctx context.Context) (*Report, error) {
	version, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := m.available()
	if err != nil {
		return nil, err
	}

	r := &Report{Version: version, Dirty: dirty}
	for _, f := range files {
		f.Applied = f.Version <= version
		f.Dirty = dirty && f.Version == version
		r.Migrations = append(r.Migrations, f)
	}

	r.Missing, err = m.missingTables(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// EnsureLatest 应用未执行的迁移，schema 为 dirty 或迁移后仍缺表时报错
func (m *Migrator) EnsureLatest(ctx context.Context) (*Report, error) {
	version, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	if dirty {
		return nil, fmt.Errorf("schema version %d is dirty; fix it with 'labelflow migrate force'", version)
	}
	if err := m.Up(ctx); err != nil {
		return nil, err
	}

	r, err := m.Report(ctx)
	if err != nil {
		return nil, err
	}
	if len(r.Missing) > 0 {
		return r, fmt.Errorf("schema version %d is missing tables: %s", r.Version, strings.Join(r.Missing, ", "))
	}
	return r, nil
}

// Close 释放 golang-migrate 实例及其连接
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	return errors.Join(srcErr, dbErr)
}

func (m *Migrator) missingTables(ctx context.Context) ([]string, error) {
	var missing []string
	q := m.dialect.tableQuery()
	for _, table := range Tables {
		var name string
		err := m.db.QueryRowContext(ctx, q, table).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			missing = append(missing, table)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
		}
	}
	return missing, nil
}

// available 解析内嵌的 NNNNNN_name.up.sql 文件，按版本升序
func (m *Migrator) available() ([]Migration, error) {
	fsys, dir := m.dialect.files()
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []Migration
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".up.sql")
		if !ok {
			continue
		}
		num, label, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(num, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, Migration{Version: uint(version), Name: label})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
