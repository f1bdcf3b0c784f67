package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/taskbridgehq/taskbridge/types"
)

// ResolveCredential turns a credentialRef (an environment variable name)
// into the credential value. The process environment wins; a project-local
// .env file is consulted as a fallback so CI and dev setups behave alike.
func ResolveCredential(root, ref string) (string, error) {
	if ref == "" {
		return "", types.NewError(types.KindConfiguration, "remote.credentialRef is not set")
	}
	if val := os.Getenv(ref); val != "" {
		return val, nil
	}
	envFile := filepath.Join(root, ".env")
	if vals, err := godotenv.Read(envFile); err == nil {
		if val := vals[ref]; val != "" {
			return val, nil
		}
	}
	return "", types.NewError(types.KindAuth, "credential "+ref+" is not set in the environment or .env")
}
