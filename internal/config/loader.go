package config

import (
	"os"
	"path/filepath"
)

// ConfigPathEnv names the environment variable consulted by GetConfigPath.
const ConfigPathEnv = "DEPLOYWATCH_CONFIG_PATH"

// GetConfigPath determines the configuration file path.
// Priority:
// 1. the path passed in (normally the -config flag)
// 2. DEPLOYWATCH_CONFIG_PATH environment variable
// 3. config.yaml, config.yml or config.json in the current working directory
// 4. the same names in the executable's directory
func GetConfigPath(configFilePathFlag string) string {
	if configFilePathFlag != "" && fileExists(configFilePathFlag) {
		return configFilePathFlag
	}

	if envPath := os.Getenv(ConfigPathEnv); envPath != "" && fileExists(envPath) {
		return envPath
	}

	cwd, errCwd := os.Getwd()
	exeDir := ""
	if exePath, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exePath)
	}

	var locations []string
	if errCwd == nil {
		locations = append(locations, cwd)
	}
	if exeDir != "" && exeDir != cwd {
		locations = append(locations, exeDir)
	}

	defaultFiles := []string{"config.yaml", "config.yml", "config.json"}
	for _, loc := range locations {
		for _, file := range defaultFiles {
			path := filepath.Join(loc, file)
			if fileExists(path) {
				return path
			}
		}
	}
	return ""
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
