package main

import (
	"os"
	"path/filepath"

	"github.com/OpenPeeDeeP/xdg"
	flags "github.com/jessevdk/go-flags"
)

// findConfigFile returns the config file path. An override path wins over the
// XDG config home.
func findConfigFile(overridePath string) string {
	if overridePath != "" {
		return overridePath
	}
	return filepath.Join(xdg.New("vipnode", "asyncrpc").ConfigHome(), "config.ini")
}

// loadConfig reads option values from an INI file into the parser's options.
// Flags parsed afterwards take precedence. A missing file is only an error if
// required.
func loadConfig(parser *flags.Parser, path string, required bool) error {
	err := flags.NewIniParser(parser).ParseFile(path)
	if os.IsNotExist(err) && !required {
		return nil
	}
	return err
}
