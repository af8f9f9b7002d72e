package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// promptForVariable prompts the user to enter a value for a variable
func promptForVariable(in *bufio.Reader, out io.Writer, name string) (string, error) {
	fmt.Fprintf(out, "Enter value for '%s': ", name)
	value, err := in.ReadString('\n')
	if err != nil && !(err == io.EOF && value != "") {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// IsInteractive checks if stdin is a terminal (not piped)
func IsInteractive() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// parseAssignments splits repeated key=value flags. A bare key sets an
// empty value.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		if key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}
