package tinshift

import (
	"errors"
	"fmt"
)

// ErrParse 所有数据集构建错误均可通过 errors.Is 识别
var ErrParse = errors.New("tinshift: parse error")

// 文档注释：数据集解析错误
// 背景：指明出错的键与行号（行号 <0 表示不涉及某一行），供调用方定位坏数据；构建失败时绝不返回部分数据集。
type ParseError struct {
	Key string
	Row int
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	loc := e.Key
	if e.Row >= 0 {
		loc = fmt.Sprintf("%s[%d]", e.Key, e.Row)
	}
	if e.Err != nil {
		return fmt.Sprintf("tinshift: parse error at %s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("tinshift: parse error at %s: %s", loc, e.Msg)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

func (e *ParseError) Unwrap() error { return e.Err }

func keyErr(key, msg string) error { return &ParseError{Key: key, Row: -1, Msg: msg} }

func rowErr(key string, row int, msg string) error {
	return &ParseError{Key: key, Row: row, Msg: msg}
}

func wrapErr(key, msg string, err error) error {
	return &ParseError{Key: key, Row: -1, Msg: msg, Err: err}
}
