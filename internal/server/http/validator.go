package http

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"chessduel/internal/server/core"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

var handlePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,40}$`)

var validate = newValidator()

// newValidator reports fields by their JSON names and adds the account tags
// handle (lobby-safe username) and password (length plus letter and digit)
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
		return handlePattern.MatchString(fl.Field().String())
	}))
	must(v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return strongPassword(fl.Field().String())
	}))
	return v
}

func strongPassword(pw string) bool {
	if len(pw) < minPasswordLength || len(pw) > maxPasswordLength {
		return false
	}
	var letter, digit bool
	for _, r := range pw {
		letter = letter || unicode.IsLetter(r)
		digit = digit || unicode.IsNumber(r)
	}
	return letter && digit
}

// bind parses the JSON body into a T and validates it before the handler
// runs; the handler reads it back with validatedBody. An empty body is
// validated as the zero T.
func bind[T any]() fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := new(T)
		if len(c.Body()) > 0 {
			if err := c.BodyParser(req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
					Error:   "invalid request body",
					Code:    core.ErrInvalidRequest,
					Details: err.Error(),
				})
			}
		}

		if err := validate.Struct(req); err != nil {
			var fieldErrs validator.ValidationErrors
			if !errors.As(err, &fieldErrs) {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
				Error:   "validation failed",
				Code:    core.ErrInvalidRequest,
				Details: describe(fieldErrs),
			})
		}

		c.Locals("validatedBody", req)
		c.Locals("validated", true)
		return c.Next()
	}
}

// describe renders field errors as one line, e.g. "to is required; depth must be at least 1"
func describe(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		field, param := fe.Field(), fe.Param()
		unit := ""
		if fe.Kind() == reflect.String {
			unit = " characters"
		}

		var msg string
		switch fe.Tag() {
		case "required":
			msg = field + " is required"
		case "oneof":
			msg = fmt.Sprintf("%s must be one of [%s]", field, param)
		case "len":
			msg = fmt.Sprintf("%s must be exactly %s%s", field, param, unit)
		case "min":
			msg = fmt.Sprintf("%s must be at least %s%s", field, param, unit)
		case "max":
			msg = fmt.Sprintf("%s must be at most %s%s", field, param, unit)
		case "email":
			msg = field + " must be a valid email address"
		case "handle":
			msg = field + " must be 1-40 letters, digits or underscores"
		case "password":
			msg = fmt.Sprintf("%s must be %d-%d characters with at least one letter and one number",
				field, minPasswordLength, maxPasswordLength)
		default:
			msg = fmt.Sprintf("%s failed %s validation", field, fe.Tag())
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
