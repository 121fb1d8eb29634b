package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgrid/flow"
	"github.com/BaSui01/flowgrid/types"
)

// =============================================================================
// 📚 工作流定义库
// =============================================================================

// workflowLibrary 从目录加载画布导出的工作流定义文件。
// 每次触发都重新读取磁盘，编辑工作流无需重启服务。
type workflowLibrary struct {
	dir    string
	logger *zap.Logger
}

func newWorkflowLibrary(dir string, logger *zap.Logger) *workflowLibrary {
	return &workflowLibrary{
		dir:    dir,
		logger: logger.With(zap.String("component", "workflow_library")),
	}
}

// libraryExtensions 按优先级排列的定义文件扩展名
var libraryExtensions = []string{".json", ".yaml", ".yml"}

// Load 按工作流 ID 加载图定义
func (l *workflowLibrary) Load(workflowID string) (*flow.Graph, error) {
	if strings.ContainsAny(workflowID, `/\.`) {
		return nil, types.NewErrorf(types.ErrValidation, "invalid workflow id %q", workflowID)
	}

	for _, ext := range libraryExtensions {
		path := filepath.Join(l.dir, workflowID+ext)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, types.NewErrorf(types.ErrValidation, "failed to read workflow %s", workflowID).WithCause(err)
		}

		var graph *flow.Graph
		if ext == ".json" {
			graph, err = flow.ImportJSON(data)
		} else {
			graph, err = flow.ImportYAML(data)
		}
		if err != nil {
			return nil, err
		}
		if graph.ID == "" {
			graph.ID = workflowID
		}
		return graph, nil
	}

	return nil, types.NewErrorf(types.ErrValidation, "unknown workflow %q", workflowID)
}

// List 返回目录下全部工作流 ID
func (l *workflowLibrary) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow dir: %w", err)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		for _, known := range libraryExtensions {
			if ext == known {
				id := strings.TrimSuffix(name, ext)
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
				break
			}
		}
	}
	return ids, nil
}
