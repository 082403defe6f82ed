// Package utils 按键管理的后台任务
package utils

import (
	"context"
	"sync"
)

// TaskRegistry 按 key 管理后台任务，同一 key 启动新任务会先取消旧任务。
// 任务只用于提醒类的辅助逻辑，进程重启丢失不影响数据正确性。
type TaskRegistry struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	tasks  map[string]*task
	seq    uint64
	wg     sync.WaitGroup
}

type task struct {
	id     uint64
	cancel context.CancelFunc
}

// NewTaskRegistry 创建任务注册表
func NewTaskRegistry(parent context.Context) *TaskRegistry {
	ctx, cancel := context.WithCancel(parent)
	return &TaskRegistry{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*task),
	}
}

// Start 启动任务，取消同 key 的旧任务
func (r *TaskRegistry) Start(key string, fn func(ctx context.Context)) {
	r.mu.Lock()
	if old, ok := r.tasks[key]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(r.ctx)
	r.seq++
	t := &task{id: r.seq, cancel: cancel}
	r.tasks[key] = t
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.finish(key, t)
		fn(ctx)
	}()
}

// finish 任务结束后清理，已被新任务替换时不删除
func (r *TaskRegistry) finish(key string, t *task) {
	t.cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.tasks[key]; ok && cur.id == t.id {
		delete(r.tasks, key)
	}
}

// Cancel 取消任务
func (r *TaskRegistry) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[key]
	if !ok {
		return false
	}
	t.cancel()
	delete(r.tasks, key)
	return true
}

// Running 任务是否在运行
func (r *TaskRegistry) Running(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[key]
	return ok
}

// Len 运行中的任务数
func (r *TaskRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Stop 取消全部任务并等待退出
func (r *TaskRegistry) Stop() {
	r.cancel()
	r.wg.Wait()
}
