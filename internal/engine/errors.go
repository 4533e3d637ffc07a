package engine

import (
	"fmt"
	"strings"
)

// StageError ошибка одного шага экспорта с путём, к которому он относился.
type StageError struct {
	Stage string
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s (%s): %v", e.Stage, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// EncodeError ошибка видеоэкспорта после открытия кодировщика. Err исходная причина,
// Suppressed ошибки Stop/Release, случившиеся уже после неё. errors.Is/As видят только Err.
type EncodeError struct {
	Err        error
	Suppressed []error
}

func (e *EncodeError) Error() string {
	if len(e.Suppressed) == 0 {
		return e.Err.Error()
	}
	parts := make([]string, len(e.Suppressed))
	for i, s := range e.Suppressed {
		parts[i] = s.Error()
	}
	return fmt.Sprintf("%v (suppressed: %s)", e.Err, strings.Join(parts, "; "))
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
