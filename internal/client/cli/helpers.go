package cli

import (
	"fmt"
	"strings"
)

// splitArgs separates n leading positional arguments from the flags after them
func splitArgs(args []string, n int, usage string) ([]string, []string, error) {
	if len(args) < n {
		return nil, nil, fmt.Errorf("missing arguments. Usage: gophgrade %s", usage)
	}
	for _, a := range args[:n] {
		if strings.HasPrefix(a, "-") {
			return nil, nil, fmt.Errorf("missing arguments. Usage: gophgrade %s", usage)
		}
	}
	return args[:n], args[n:], nil
}

// excerpt shortens text to limit runes for list output
func excerpt(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit-1]) + "…"
}
