package log

import "log/slog"

func RunID[T ~string](id T) slog.Attr {
	return slog.String("run_id", string(id))
}

func StepName[T ~string](name T) slog.Attr {
	return slog.String("step", string(name))
}

func FlowName(name string) slog.Attr {
	return slog.String("flow", name)
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func Revision(rev uint64) slog.Attr {
	return slog.Uint64("revision", rev)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}
