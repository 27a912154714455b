package injector

import (
	"fmt"

	"github.com/gregrebin/cihat-bot/internal/runtime"
)

// Ref 按类别与名字引用一个待构建的模块。
type Ref struct {
	Category string
	Name     string
}

// Builder 构建一个模块实例。注入器把自己传进去，
// 构建方可以在运行期继续注入别的模块。
type Builder func(inj *Injector, name string) (runtime.Component, error)

// Entry 是注册表里的一个条目：如何构建，以及构建后挂载哪些子模块。
type Entry struct {
	Build      Builder
	Submodules []Ref
}

// Registry 按类别与名字索引全部可构建的模块。
type Registry map[string]map[string]Entry

// Attacher 由接受子模块挂载的组件实现。
type Attacher interface {
	Attach(child runtime.Component) error
}

// Error 表示注入失败。调用方可以据此区分拓扑问题与业务错误。
type Error struct {
	Category string
	Name     string
	Reason   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("注入 %s/%s 失败: %v", e.Category, e.Name, e.Reason)
}

func (e *Error) Unwrap() error { return e.Reason }

// Injector 根据注册表递归组装模块树。
type Injector struct {
	registry Registry
}

func New(registry Registry) *Injector {
	return &Injector{registry: registry}
}

// Inject 构建指定模块及其整棵子树。
func (inj *Injector) Inject(category, name string) (runtime.Component, error) {
	entries, ok := inj.registry[category]
	if !ok {
		return nil, &Error{Category: category, Name: name, Reason: fmt.Errorf("未知类别")}
	}
	entry, ok := entries[name]
	if !ok {
		return nil, &Error{Category: category, Name: name, Reason: fmt.Errorf("未注册")}
	}

	component, err := entry.Build(inj, name)
	if err != nil {
		return nil, &Error{Category: category, Name: name, Reason: err}
	}

	if len(entry.Submodules) > 0 {
		attacher, ok := component.(Attacher)
		if !ok {
			return nil, &Error{Category: category, Name: name, Reason: fmt.Errorf("组件不接受子模块")}
		}
		for _, ref := range entry.Submodules {
			child, err := inj.Inject(ref.Category, ref.Name)
			if err != nil {
				return nil, err
			}
			if err := attacher.Attach(child); err != nil {
				return nil, &Error{Category: category, Name: name, Reason: err}
			}
		}
	}

	return component, nil
}
