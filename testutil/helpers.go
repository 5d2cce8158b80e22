// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供数据库、项目目录、图片与异步断言等通用测试辅助
//
// 使用方法:
//
//	pm := testutil.NewTestDB(t)
//	project := testutil.NewProject(t, pm.DB())
//	testutil.WriteImage(t, project, "a.png", 8, 6)
// =============================================================================
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/labelflow/config"
	"github.com/BaSui01/labelflow/internal/database"
	"github.com/BaSui01/labelflow/models"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// 🗄️ 数据库辅助
// =============================================================================

// NewTestDB 打开按测试名隔离的内存 SQLite，并完成自动迁移
func NewTestDB(t *testing.T) *database.PoolManager {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	pm, err := database.OpenSQLiteMemory(name, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pm.Close() })

	require.NoError(t, models.InitDatabase(pm.DB()))
	return pm
}

// NewProject 创建一个以临时目录为 data_dir 的项目
func NewProject(t *testing.T, db *gorm.DB) *models.Project {
	t.Helper()

	project := &models.Project{
		Name:    "project-" + strings.ReplaceAll(t.Name(), "/", "-"),
		DataDir: t.TempDir(),
	}
	require.NoError(t, db.Create(project).Error)
	return project
}

// StorageConfig 返回测试使用的存储配置
func StorageConfig() config.StorageConfig {
	return config.DefaultStorageConfig()
}

// =============================================================================
// 🖼️ 图片辅助
// =============================================================================

// PNG 生成 w×h 的纯色 PNG
func PNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// WriteImage 在 <data_dir>/data/original 下写入一张 PNG，返回相对路径
func WriteImage(t *testing.T, project *models.Project, name string, w, h int) string {
	t.Helper()

	dir := filepath.Join(project.DataDir, "data", models.StageOriginal)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), PNG(t, w, h), 0o644))
	return models.StageOriginal + "/" + name
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Errorf("condition did not become true within %v", timeout)
}

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// LinearConfig 返回 image_source → preprocess → ... 的链式工作流
func LinearConfig(types ...models.NodeType) models.WorkflowConfig {
	cfg := models.WorkflowConfig{}
	for i, nt := range types {
		id := fmt.Sprintf("n%d_%s", i, nt)
		cfg.Nodes = append(cfg.Nodes, models.NodeConfig{ID: id, Type: nt})
		if i > 0 {
			cfg.Edges = append(cfg.Edges, models.EdgeConfig{Source: cfg.Nodes[i-1].ID, Target: id})
		}
	}
	return cfg
}

// SourcePreprocessConfig 返回 A(image_source) → B(preprocess)
func SourcePreprocessConfig() models.WorkflowConfig {
	return models.WorkflowConfig{
		Nodes: []models.NodeConfig{
			{ID: "A", Type: models.NodeImageSource},
			{ID: "B", Type: models.NodePreprocess},
		},
		Edges: []models.EdgeConfig{{Source: "A", Target: "B"}},
	}
}

// BranchingConfig 返回 src → pre → {det, cls, sem} 的分支工作流
func BranchingConfig() models.WorkflowConfig {
	return models.WorkflowConfig{
		Nodes: []models.NodeConfig{
			{ID: "src", Type: models.NodeImageSource},
			{ID: "pre", Type: models.NodePreprocess, Params: map[string]any{"resize": []any{32, 32}}},
			{ID: "det", Type: models.NodeObjectDetection},
			{ID: "cls", Type: models.NodeClassification, Params: map[string]any{"classes": []any{"cat", "dog"}}},
			{ID: "sem", Type: models.NodeSemanticSegmentation},
		},
		Edges: []models.EdgeConfig{
			{Source: "src", Target: "pre"},
			{Source: "pre", Target: "det"},
			{Source: "pre", Target: "cls"},
			{Source: "pre", Target: "sem"},
		},
	}
}
