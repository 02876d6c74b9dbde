package attendance

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/unilearn/lms/core"
)

var (
	manualStatusTag  = "manualstatus"
	manualStatusText = "{0} must be one of: present, absent, excused, late"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(manualStatusTag, manualStatusValidation)
	core.RegisterCustomTranslation(validate, translator, manualStatusTag, manualStatusText)
}

// manualStatusValidation accepts the statuses a person may set; auto_present is reserved to video completion.
func manualStatusValidation(fl validator.FieldLevel) bool {
	st, ok := fl.Field().Interface().(Status)
	if !ok {
		return false
	}
	return st.Valid() && st != StatusAutoPresent
}
