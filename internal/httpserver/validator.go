package httpserver

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Skotchmaster/eventbook/internal/service"
	"github.com/Skotchmaster/eventbook/internal/transport"
)

// RequestValidator plugs go-playground/validator into echo's Validate.
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("classname", func(fl validator.FieldLevel) bool {
		return service.ValidClassname(fl.Field().String())
	})
	return &RequestValidator{v: v}
}

func (rv *RequestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", fe.Field())
	case "email":
		return fmt.Sprintf("The %s field is not a valid e-mail address.", fe.Field())
	case "uuid":
		return fmt.Sprintf("The %s field must be a valid identifier.", fe.Field())
	case "classname":
		return service.ClassnameMessage
	default:
		return fmt.Sprintf("The %s field failed the %s check.", fe.Field(), fe.Tag())
	}
}

// validationResponse turns validator output into one entry per failing field.
func validationResponse(err error) transport.ValidationErrorResponse {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return transport.ValidationErrorResponse{Errors: []transport.ErrorModel{{Message: err.Error()}}}
	}

	out := make([]transport.ErrorModel, 0, len(ves))
	for _, fe := range ves {
		out = append(out, transport.ErrorModel{FieldName: fe.Field(), Message: fieldMessage(fe)})
	}
	return transport.ValidationErrorResponse{Errors: out}
}
