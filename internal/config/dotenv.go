package config

import (
	"github.com/joho/godotenv"
)

// DefaultEnvFiles are the locations searched for a .env file, in order.
var DefaultEnvFiles = []string{".env", "../.env", "/app/.env"}

// LoadEnvFile loads the first readable file among paths into the process
// environment without overriding variables that are already set. It returns
// the path that was loaded, or "" when none was found.
func LoadEnvFile(paths ...string) string {
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}
