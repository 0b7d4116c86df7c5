package handler

import (
    "errors"
    "fmt"
    "reflect"
    "regexp"
    "strings"

    "github.com/go-playground/validator/v10"
)

// Sri Lankan numbers: +94 followed by nine digits, or ten local digits.
var contactNumberRe = regexp.MustCompile(`^(\+94[0-9]{9}|[0-9]{10})$`)

// Validator adapts validator/v10 to echo's Validator hook.  Field names in
// errors are the json names.
type Validator struct {
    v *validator.Validate
}

func NewValidator() *Validator {
    v := validator.New(validator.WithRequiredStructEnabled())
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
        if name == "-" {
            return ""
        }
        return name
    })
    _ = v.RegisterValidation("contact", func(fl validator.FieldLevel) bool {
        return contactNumberRe.MatchString(fl.Field().String())
    })
    return &Validator{v: v}
}

// Validate returns a *validationError listing every failed field.
func (cv *Validator) Validate(i any) error {
    err := cv.v.Struct(i)
    if err == nil {
        return nil
    }
    var verrs validator.ValidationErrors
    if !errors.As(err, &verrs) {
        return err
    }
    out := &validationError{}
    for _, fe := range verrs {
        out.fields = append(out.fields, FieldError{Field: fe.Field(), Message: messageFor(fe)})
    }
    return out
}

type validationError struct {
    fields []FieldError
}

func (e *validationError) Error() string {
    parts := make([]string, 0, len(e.fields))
    for _, f := range e.fields {
        parts = append(parts, f.Field+": "+f.Message)
    }
    return "validation failed: " + strings.Join(parts, "; ")
}

func messageFor(fe validator.FieldError) string {
    switch fe.Tag() {
    case "required":
        return fmt.Sprintf("%s is required", fe.Field())
    case "email":
        return "Please provide a valid email"
    case "min":
        return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
    case "max":
        return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
    case "contact":
        return "Please provide a valid contact number"
    case "oneof":
        return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
    }
    return fmt.Sprintf("%s is invalid", fe.Field())
}
