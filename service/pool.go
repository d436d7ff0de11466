package service

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// InstancePool 固定数量的检测器实例，每个实例同一时间只被一个调用方使用
type InstancePool[T io.Closer] struct {
	instances chan T
	all       []T
}

// NewInstancePool 创建 size 个实例，任一实例创建失败时关闭已创建的实例
func NewInstancePool[T io.Closer](size int, newInstance func() (T, error)) (*InstancePool[T], error) {
	if size <= 0 {
		size = 1
	}

	p := &InstancePool[T]{
		instances: make(chan T, size),
		all:       make([]T, 0, size),
	}
	for i := 0; i < size; i++ {
		inst, err := newInstance()
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("create pool instance %d: %w", i, err)
		}
		p.all = append(p.all, inst)
		p.instances <- inst
	}
	return p, nil
}

// Acquire 取出一个空闲实例，ctx 结束时返回错误
func (p *InstancePool[T]) Acquire(ctx context.Context) (T, error) {
	select {
	case inst := <-p.instances:
		return inst, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Release 归还实例
func (p *InstancePool[T]) Release(inst T) {
	p.instances <- inst
}

// With 取出实例执行 fn，结束后归还
func (p *InstancePool[T]) With(ctx context.Context, fn func(T) error) error {
	inst, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(inst)
	return fn(inst)
}

func (p *InstancePool[T]) Size() int {
	return len(p.all)
}

func (p *InstancePool[T]) Close() error {
	var errs []error
	for _, inst := range p.all {
		if err := inst.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.all = nil
	return errors.Join(errs...)
}
