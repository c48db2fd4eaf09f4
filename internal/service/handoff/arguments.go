package handoff

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// argumentsPermissions is the mode of the saved arguments file.
const argumentsPermissions = 0o600

// WriteArguments saves a command line to path, one argument per line, argv[0] first.
func WriteArguments(path string, args []string) error {
	var buffer bytes.Buffer

	for _, arg := range args {
		buffer.WriteString(arg)
		buffer.WriteByte('\n')
	}

	if err := writeFileSync(path, buffer.Bytes(), argumentsPermissions); err != nil {
		return fmt.Errorf("write arguments: %w", err)
	}

	return nil
}

// ReadArguments loads a command line saved by WriteArguments.
func ReadArguments(path string) ([]string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read arguments: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	var args []string

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		args = append(args, strings.TrimSuffix(scanner.Text(), "\r"))
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("read arguments: %w", err)
	}

	return args, nil
}

// writeFileSync writes data and flushes it to stable storage before closing.
func writeFileSync(path string, data []byte, perm os.FileMode) error {
	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err = file.Write(data); err != nil {
		_ = file.Close()

		return err
	}

	if err = file.Sync(); err != nil {
		_ = file.Close()

		return err
	}

	return file.Close()
}
