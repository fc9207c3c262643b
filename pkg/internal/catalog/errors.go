package catalog

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable 数据库无法访问或操作失败，调用方可重试.
var ErrStoreUnavailable = errors.New("catalog store unavailable")

// StoreError 包装后端错误，errors.Is(err, ErrStoreUnavailable) 总为真.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("catalog %s %s: %v", e.Op, e.Key, e.Err)
	}

	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is 让所有 StoreError 匹配 ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func storeErr(op, key string, err error) error {
	if err == nil {
		return nil
	}

	return &StoreError{Op: op, Key: key, Err: err}
}
