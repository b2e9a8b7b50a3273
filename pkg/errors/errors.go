package errors

import (
	stderrors "errors"
	"fmt"

	"bracketflow/pkg/errors/ecode"
)

// Err 携带错误码的错误，response.JSON 根据它生成响应
type Err struct {
	Code    int
	Message string
	cause   error
}

func (e *Err) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
	}
	return fmt.Sprintf("code=%d, message=%s: %v", e.Code, e.Message, e.cause)
}

func (e *Err) Unwrap() error { return e.cause }

func WithCode(code int, message string) error {
	return &Err{Code: code, Message: message}
}

// Wrap 给底层错误附加错误码，message 为空时使用默认描述
func Wrap(err error, code int, message string) error {
	if err == nil {
		return nil
	}
	if message == "" {
		message = ecode.Text(code)
	}
	return &Err{Code: code, Message: message, cause: err}
}

// DecodeErr 解析错误码和提示信息，nil 视为成功
func DecodeErr(err error) (int, string) {
	if err == nil {
		return ecode.Success, ecode.Text(ecode.Success)
	}
	var e *Err
	if stderrors.As(err, &e) {
		if e.cause != nil {
			return e.Code, e.Message + ": " + e.cause.Error()
		}
		return e.Code, e.Message
	}
	return ecode.ServerErr, err.Error()
}
