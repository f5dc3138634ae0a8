package logger

import (
	"log/slog"
	"time"
)

// Error records err under "error". Nil errors produce an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// TenantID records the tenant identifier under "tenant_id".
func TenantID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("tenant_id", id)
}

// UserID records the user identifier under "user_id".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// LogID records a push ledger entry id under "push_log_id".
func LogID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("push_log_id", id)
}

// Provider records the push provider kind under "provider".
func Provider(kind string) slog.Attr {
	return slog.String("provider", kind)
}

// TaskID records a queue task id under "task_id".
func TaskID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("task_id", id)
}

// TaskName records a queue task name under "task_name".
func TaskName(name string) slog.Attr {
	return slog.String("task_name", name)
}

// Queue records a queue name under "queue".
func Queue(name string) slog.Attr {
	return slog.String("queue", name)
}

// Component records the component name under "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Duration records d under "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Token records a shortened device token under "token". Only the first and
// last four characters survive.
func Token(token string) slog.Attr {
	if len(token) <= 12 {
		return slog.String("token", "****")
	}
	return slog.String("token", token[:4]+"…"+token[len(token)-4:])
}
