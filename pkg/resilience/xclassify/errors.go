package xclassify

import (
	"errors"
	"fmt"
)

// Kinder 暴露错误种类（例如 "ThrottlingException"）。
// 远端 SDK 的错误码、异常名称通过该接口参与分类。
type Kinder interface {
	Kind() string
}

// KindError 带种类的简单错误，供适配层把远端错误码转换为 Go 错误。
type KindError struct {
	kind string
	msg  string
}

// NewError 创建带种类的错误
func NewError(kind, msg string) *KindError {
	return &KindError{kind: kind, msg: msg}
}

// Error 实现 error 接口。只返回消息，种类通过 Kind 单独参与分类。
func (e *KindError) Error() string { return e.msg }

// Kind 实现 Kinder 接口
func (e *KindError) Kind() string { return e.kind }

// ClassifiedError 携带分类结果的错误
//
// errors.Is(err, xclassify.ErrNetwork) 对 Category 为 Network 的 ClassifiedError 成立，
// 同时保留原始错误链。
type ClassifiedError struct {
	Category Category
	Err      error
}

// Classified 包装 err 并记录类别。err 为 nil 时返回 nil。
func Classified(c Category, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Category: c, Err: err}
}

// Error 实现 error 接口
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

// Unwrap 返回原始错误
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Is 让类别哨兵错误可以匹配
func (e *ClassifiedError) Is(target error) bool {
	return target == e.Category.Sentinel()
}

// CategoryOf 从错误链中取出已记录的类别。
func CategoryOf(err error) (Category, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Category, true
	}
	return Generic, false
}
