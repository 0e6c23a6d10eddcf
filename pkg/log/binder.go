package log

import "go.uber.org/atomic"

// Binder 嵌入到组件中，为组件提供可替换的 Logger。
// 未绑定时回退到全局 Logger。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

// SetLogger 绑定 Logger，nil 表示恢复为全局 Logger。
func (b *Binder) SetLogger(logger *MLogger) {
	b.logger.Store(logger)
}

// BindComponent 绑定一个带组件名字段的 Logger，派生自当前已绑定的 Logger。
func (b *Binder) BindComponent(component string) *MLogger {
	l := b.Logger().With(FieldComponent(component))
	b.logger.Store(l)
	return l
}

func (b *Binder) Logger() *MLogger {
	if l := b.logger.Load(); l != nil {
		return l
	}
	return With()
}
