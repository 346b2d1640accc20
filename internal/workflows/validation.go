package workflows

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

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
	return v
}

// Validate checks the command and normalizes its source path.
func (c *CreateCommand) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.SourcePath = normalizePath(c.SourcePath)
	c.OwnerID = strings.TrimSpace(c.OwnerID)
	return check(c)
}

// Validate checks the command and normalizes its source path.
func (c *UpdateCommand) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.SourcePath = normalizePath(c.SourcePath)
	return check(c)
}

func check(cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, describe(e))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(messages, "; "))
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param())
	}
	return fmt.Sprintf("%s failed %s", e.Field(), e.Tag())
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
