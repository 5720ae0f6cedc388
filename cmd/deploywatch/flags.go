package main

import (
	"flag"
	"fmt"
	"io"
	"time"
)

const (
	modeWatch = "watch"
	modeCheck = "check"

	defaultCheckWait = 30 * time.Second
)

type AppFlags struct {
	GlobalConfigFile string
	BaseURL          string
	Mode             string
	Wait             time.Duration
	History          int
	WriteConfig      string
}

// ParseFlags parses args (without the program name). Short aliases apply when
// the long flag is unset.
func ParseFlags(args []string, output io.Writer) (AppFlags, error) {
	fs := flag.NewFlagSet("deploywatch", flag.ContinueOnError)
	fs.SetOutput(output)

	globalConfigFile := fs.String("config", "", "Path to the YAML/JSON configuration file. If not set, searches default locations.")
	globalConfigFileAlias := fs.String("c", "", "Alias for -config")

	baseURL := fs.String("url", "", "Base URL of the watched application (overrides detector_config.base_url)")
	baseURLAlias := fs.String("u", "", "Alias for -url")

	modeFlag := fs.String("mode", "", "watch: run the detector as configured; check: report whether a deployment happens within -wait")
	modeFlagAlias := fs.String("m", "", "Alias for -mode")

	wait := fs.Duration("wait", 0, "Observation window for check mode")
	waitAlias := fs.Duration("w", 0, "Alias for -wait")

	history := fs.Int("history", 0, "Print the last N recorded events and exit")
	writeConfig := fs.String("write-config", "", "Write the effective configuration (defaults, file and flags merged) to this path and exit")

	if err := fs.Parse(args); err != nil {
		return AppFlags{}, err
	}

	flags := AppFlags{
		GlobalConfigFile: firstNonEmpty(*globalConfigFile, *globalConfigFileAlias),
		BaseURL:          firstNonEmpty(*baseURL, *baseURLAlias),
		Mode:             firstNonEmpty(*modeFlag, *modeFlagAlias, modeWatch),
		Wait:             *wait,
		History:          *history,
		WriteConfig:      *writeConfig,
	}
	if flags.Wait == 0 {
		flags.Wait = *waitAlias
	}
	if flags.Wait == 0 {
		flags.Wait = defaultCheckWait
	}

	if flags.Mode != modeWatch && flags.Mode != modeCheck {
		return AppFlags{}, fmt.Errorf("invalid -mode %q (watch or check)", flags.Mode)
	}
	if flags.Wait < 0 {
		return AppFlags{}, fmt.Errorf("-wait must not be negative")
	}
	if flags.History < 0 {
		return AppFlags{}, fmt.Errorf("-history must not be negative")
	}
	return flags, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
