package validator

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	zhTranslations "github.com/go-playground/validator/v10/translations/zh"
)

var (
	once  sync.Once
	trans ut.Translator
)

// LazyInitGinValidator 为 gin 的默认校验器注册错误翻译
func LazyInitGinValidator(language string) {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		uni := ut.New(en.New(), zh.New(), en.New())
		if language == "" {
			language = "zh"
		}
		trans, _ = uni.GetTranslator(language)
		switch language {
		case "en":
			_ = enTranslations.RegisterDefaultTranslations(v, trans)
		default:
			_ = zhTranslations.RegisterDefaultTranslations(v, trans)
		}
	})
}

// Translate 把校验错误转成可读信息，其他错误原样返回
func Translate(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || trans == nil {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Translate(trans))
	}
	return strings.Join(msgs, "; ")
}
