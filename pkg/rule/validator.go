// Package rule 封装 go-playground/validator，结构体标签使用 `rule:"..."`.
//
// 除内置规则外还注册了:
//
//	notion_id  32 位十六进制或带连字符的 UUID 形式的 Notion 块/页面 ID
//	xxhash64   16 位小写十六进制内容指纹
package rule

import (
	"errors"
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var builtins = map[string]*regexp.Regexp{
	"notion_id": regexp.MustCompile(`^(?:[0-9a-fA-F]{32}|[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})$`),
	"xxhash64":  regexp.MustCompile(`^[0-9a-f]{16}$`),
}

// Engine 返回全局 validator.gin 的绑定引擎保持 binding 标签，只额外注册同样的自定义规则.
var Engine = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	v.SetTagName("rule")
	register(v)

	if g, ok := binding.Validator.Engine().(*validator.Validate); ok {
		register(g)
	}

	return v
})

func register(v *validator.Validate) {
	for tag, re := range builtins {
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return re.MatchString(fl.Field().String())
		})
	}
}

// ValidateStruct 校验结构体，错误可用 Errors 展开.
func ValidateStruct(s any) error {
	return Engine().Struct(s)
}

// ValidateVar 按规则校验单个值，例如 ValidateVar(id, "notion_id").
func ValidateVar(field any, tag string) error {
	return Engine().Var(field, tag)
}

// ValidationErrors 字段命名空间到可读错误的映射.
type ValidationErrors map[string]string

// Errors 展开校验错误；err 不是校验错误时返回 nil.
func Errors(err error) ValidationErrors {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make(ValidationErrors, len(verrs))
	for _, fe := range verrs {
		msg := "failed on '" + fe.Tag() + "'"
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}

		out[fe.Namespace()] = msg
	}

	return out
}
