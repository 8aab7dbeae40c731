package progress

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/oiclass/oiclass/core"
)

var (
	problemStatusTag  = "problemstatus"
	problemStatusText = "status must be one of attempted, solved"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(problemStatusTag, func(fl validator.FieldLevel) bool {
		return statuses[fl.Field().String()]
	})
	core.RegisterCustomTranslation(validate, translator, problemStatusTag, problemStatusText)
}
