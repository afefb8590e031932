package cli

import (
	"errors"
	"strconv"
)

// errNoProject — команда требует --project.
var errNoProject = errors.New("project is required (--project or MEDALLION_PROJECT)")

// count форматирует счётчик строк; nil — "-".
func count(n *int64) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatInt(*n, 10)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ProjectFrom возвращает projectFn, читающий значение флага --project.
func ProjectFrom(project *string) func() (string, error) {
	return func() (string, error) {
		if *project == "" {
			return "", errNoProject
		}
		return *project, nil
	}
}
