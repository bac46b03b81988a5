package contracts

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInsufficientData marks data-sufficiency failures (errors.Is target)
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNotFound is returned by stores when nothing matches
	ErrNotFound = errors.New("not found")
)

// ValidationError is a synchronous input validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MissingFieldError names every required field that was absent
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required feature fields: %s", strings.Join(e.Fields, ", "))
}

// InsufficientDataError blocks only the stage that raised it
type InsufficientDataError struct {
	Stage string
	Have  float64
	Need  float64
	What  string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient %s for %s: have %.4g, need %.4g", e.What, e.Stage, e.Have, e.Need)
}

// Is makes errors.Is(err, ErrInsufficientData) hold
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
