// 包 document：只读的 JSON 文档查询接口（对象/数组/值），屏蔽底层解码细节
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	ErrMissingKey = errors.New("missing key")
	ErrWrongType  = errors.New("wrong value type")
)

// KeyError：携带出错键名，便于上层拼装解析错误
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string { return fmt.Sprintf("%s: %v", e.Key, e.Err) }
func (e *KeyError) Unwrap() error { return e.Err }

// 文档注释：文档值句柄
// 背景：按 UseNumber 解码，数值保留原文以区分无符号整数与浮点；对象为 map[string]any，数组为 []any。
// 约束：只读；零值表示 JSON null 或缺失成员。
type Value struct {
	v any
}

// Parse 解析完整 JSON 文本；尾随非空白内容视为错误
func Parse(b []byte) (Value, error) {
	return Decode(bytes.NewReader(b))
}

func Decode(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, errors.New("unexpected trailing data after JSON document")
	}
	return Value{v: v}, nil
}

func (v Value) IsNull() bool { return v.v == nil }

func (v Value) IsString() bool {
	_, ok := v.v.(string)
	return ok
}

func (v Value) IsArray() bool {
	_, ok := v.v.([]any)
	return ok
}

func (v Value) IsObject() bool {
	_, ok := v.v.(map[string]any)
	return ok
}

func (v Value) IsNumber() bool {
	_, ok := v.v.(json.Number)
	return ok
}

// IsUnsignedInteger 仅接受不带小数点、指数与负号的整数文本
func (v Value) IsUnsignedInteger() bool {
	_, ok := v.Uint()
	return ok
}

// Str 返回字符串值
func (v Value) Str() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// Float 返回数值；非数值返回 false
func (v Value) Float() (float64, bool) {
	n, ok := v.v.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

func (v Value) Uint() (uint64, bool) {
	n, ok := v.v.(json.Number)
	if !ok {
		return 0, false
	}
	s := n.String()
	if strings.ContainsAny(s, ".eE-+") {
		return 0, false
	}
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return u, true
}

// Len 数组长度或对象成员数；其他类型为 0
func (v Value) Len() int {
	switch x := v.v.(type) {
	case []any:
		return len(x)
	case map[string]any:
		return len(x)
	}
	return 0
}

// At 按下标取数组元素；越界或非数组返回零值
func (v Value) At(i int) Value {
	arr, ok := v.v.([]any)
	if !ok || i < 0 || i >= len(arr) {
		return Value{}
	}
	return Value{v: arr[i]}
}

// Get 按键取对象成员
func (v Value) Get(key string) (Value, bool) {
	m, ok := v.v.(map[string]any)
	if !ok {
		return Value{}, false
	}
	x, ok := m[key]
	return Value{v: x}, ok
}

// Has 判断对象是否包含成员（值为 null 也算存在）
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// RequiredString 必填字符串成员
func (v Value) RequiredString(key string) (string, error) {
	x, ok := v.Get(key)
	if !ok {
		return "", &KeyError{Key: key, Err: ErrMissingKey}
	}
	s, ok := x.Str()
	if !ok {
		return "", &KeyError{Key: key, Err: ErrWrongType}
	}
	return s, nil
}

// OptionalString 可选字符串成员：缺失返回空串；存在但非字符串返回错误
func (v Value) OptionalString(key string) (string, error) {
	x, ok := v.Get(key)
	if !ok {
		return "", nil
	}
	s, ok := x.Str()
	if !ok {
		return "", &KeyError{Key: key, Err: ErrWrongType}
	}
	return s, nil
}

func (v Value) RequiredArray(key string) (Value, error) {
	x, ok := v.Get(key)
	if !ok {
		return Value{}, &KeyError{Key: key, Err: ErrMissingKey}
	}
	if !x.IsArray() {
		return Value{}, &KeyError{Key: key, Err: ErrWrongType}
	}
	return x, nil
}

// OptionalArray 可选数组成员；第二个返回值表示是否存在
func (v Value) OptionalArray(key string) (Value, bool, error) {
	x, ok := v.Get(key)
	if !ok {
		return Value{}, false, nil
	}
	if !x.IsArray() {
		return Value{}, true, &KeyError{Key: key, Err: ErrWrongType}
	}
	return x, true, nil
}

func (v Value) OptionalObject(key string) (Value, bool, error) {
	x, ok := v.Get(key)
	if !ok {
		return Value{}, false, nil
	}
	if !x.IsObject() {
		return Value{}, true, &KeyError{Key: key, Err: ErrWrongType}
	}
	return x, true, nil
}
