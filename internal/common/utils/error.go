package utils

import (
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	"go.uber.org/zap"
)

// StackError はエラーに発生時点のスタックトレースを付与します
// %+v で書式化した場合のみスタックトレースを出力します
type StackError struct {
	err   error
	stack []byte
}

func (e *StackError) Error() string { return e.err.Error() }

func (e *StackError) Unwrap() error { return e.err }

// Stack はスタックトレースを返します
func (e *StackError) Stack() string { return string(e.stack) }

func (e *StackError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%v\nStack trace:\n%s", e.err, e.stack)
		return
	}
	io.WriteString(s, e.Error()) //nolint:errcheck
}

// WithStack は err にスタックトレースを付与します。付与済みの場合はそのまま返します
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var se *StackError
	if errors.As(err, &se) {
		return err
	}
	return &StackError{err: err, stack: debug.Stack()}
}

// ErrorFields は err をログに出力するためのフィールドを返します
// スタックトレースはメッセージと分けて stacktrace に出力します
func ErrorFields(err error) []zap.Field {
	var se *StackError
	if !errors.As(err, &se) {
		return []zap.Field{zap.Error(err)}
	}
	if err == error(se) {
		err = se.err
	}
	return []zap.Field{zap.Error(err), zap.String("stacktrace", se.Stack())}
}
