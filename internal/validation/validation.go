// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/basket-service/internal/model"
)

var productIDPattern = regexp.MustCompile(`^[0-9]-[0-9]-[0-9]-[0-9]-[0-9]-[0-9]$`)

// Error описывает нарушение ограничения конкретного поля.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	// Денежные поля проверяются по десятичному представлению без перевода во float.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("decmin", func(fl validator.FieldLevel) bool {
		d, bound, ok := decimalWithParam(fl)
		return ok && d.Cmp(bound) >= 0
	})
	_ = v.RegisterValidation("decmax", func(fl validator.FieldLevel) bool {
		d, bound, ok := decimalWithParam(fl)
		return ok && d.Cmp(bound) <= 0
	})
	_ = v.RegisterValidation("decscale", func(fl validator.FieldLevel) bool {
		d, places, ok := decimalWithParam(fl)
		if !ok {
			return false
		}
		p := int32(places.IntPart())
		return d.Equal(d.Truncate(p))
	})
	_ = v.RegisterValidation("productid", func(fl validator.FieldLevel) bool {
		return IsValidProductID(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return v
}

// IsValidProductID проверяет формат номера товара: шесть цифр через дефис.
func IsValidProductID(id string) bool {
	return productIDPattern.MatchString(id)
}

// ValidateLineItem проверяет поля позиции корзины и возвращает *Error для первого нарушения.
func ValidateLineItem(item model.LineItem) error {
	err := validate.Struct(item)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate line item: %w", err)
	}

	fe := verrs[0]
	return &Error{
		Field:   fe.Field(),
		Message: message(fe),
	}
}

func decimalWithParam(fl validator.FieldLevel) (decimal.Decimal, decimal.Decimal, bool) {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	param, err := decimal.NewFromString(fl.Param())
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	return d, param, true
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "decmin":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "decmax":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "decscale":
		return fmt.Sprintf("%s must not have more than %s decimal places", fe.Field(), fe.Param())
	case "productid":
		return fmt.Sprintf("%s must consist of six digits separated by dashes", fe.Field())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must not be longer than %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
