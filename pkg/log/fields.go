package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule      = "module"
	FieldNameComponent   = "component"
	FieldNameLiveSession = "liveSessionID"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldLiveSession 返回一个包含直播会话 ID 的 zap 字段。
func FieldLiveSession(id string) zap.Field {
	return zap.String(FieldNameLiveSession, id)
}
