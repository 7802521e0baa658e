package skills

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// FileEvent 技能目录变化事件
type FileEvent struct {
	Type string // create, modify, delete
	Path string // 技能目录路径
	Root string // 所属根目录
}

// FileWatcher 技能目录轮询监听器
//
// 按固定周期对比各根目录下 SKILL.md 的修改时间与大小，
// 产生 create/modify/delete 事件。
type FileWatcher struct {
	roots    func() []string
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	callback func(event FileEvent)
	files    map[string]os.FileInfo // 技能目录 -> SKILL.md 状态
	rootOf   map[string]string
}

// NewFileWatcher 创建监听器；roots 每轮重新求值以感知项目目录变化
func NewFileWatcher(roots func() []string, interval time.Duration, callback func(event FileEvent)) *FileWatcher {
	return &FileWatcher{
		roots:    roots,
		interval: interval,
		stop:     make(chan struct{}),
		callback: callback,
		files:    make(map[string]os.FileInfo),
		rootOf:   make(map[string]string),
	}
}

// Start 启动监听
func (w *FileWatcher) Start() error {
	// 初始扫描只建立基线，不触发事件
	w.scan(false)

	ticker := time.NewTicker(w.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				w.scan(true)
			case <-w.stop:
				ticker.Stop()
				return
			}
		}
	}()

	return nil
}

// Stop 停止监听，可重复调用
func (w *FileWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
}

// scan 扫描全部根目录，对比快照并触发回调
func (w *FileWatcher) scan(emit bool) {
	current := make(map[string]os.FileInfo)
	currentRoot := make(map[string]string)

	for _, root := range w.roots() {
		entries, err := os.ReadDir(root)
		if err != nil {
			if !os.IsNotExist(err) {
				klog.Warningf("扫描技能根目录 %s 失败: %v", root, err)
			}
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			skillDir := filepath.Join(root, entry.Name())
			info, err := os.Stat(filepath.Join(skillDir, SkillFilename))
			if err != nil {
				continue // 不是技能目录
			}
			current[skillDir] = info
			currentRoot[skillDir] = root
		}
	}

	if emit {
		for path, info := range current {
			old, exists := w.files[path]
			if !exists {
				w.callback(FileEvent{Type: "create", Path: path, Root: currentRoot[path]})
			} else if info.ModTime() != old.ModTime() || info.Size() != old.Size() {
				w.callback(FileEvent{Type: "modify", Path: path, Root: currentRoot[path]})
			}
		}
		for path := range w.files {
			if _, exists := current[path]; !exists {
				w.callback(FileEvent{Type: "delete", Path: path, Root: w.rootOf[path]})
			}
		}
	}

	w.files = current
	w.rootOf = currentRoot
}
