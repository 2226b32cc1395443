package tracegen

import (
	"fmt"
	"go/token"
	"strings"
)

// FieldError reports a field tracegen cannot trace.
type FieldError struct {
	Pos     token.Position
	Type    string
	Field   string
	Message string
	// Suggestion is an optional hint for fixing the field.
	Suggestion string
}

// Error implements the error interface.
//
// Format: file:line:column: Type.Field: message
func (e *FieldError) Error() string {
	result := fmt.Sprintf("%s: %s.%s: %s", e.Pos, e.Type, e.Field, e.Message)
	if e.Suggestion != "" {
		result += fmt.Sprintf(" (%s)", e.Suggestion)
	}
	return result
}

// ErrorList is every FieldError found in one package, in source order.
type ErrorList []*FieldError

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d untraceable fields:", len(l))
	for _, e := range l {
		b.WriteString("\n\t")
		b.WriteString(e.Error())
	}
	return b.String()
}

func (l ErrorList) err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
