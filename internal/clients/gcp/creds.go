package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/yungbote/coursehub-backend/internal/platform/envutil"
)

// ClientOptionsFromEnv accepts inline JSON credentials or a file path. With
// neither set the client falls back to application default credentials.
func ClientOptionsFromEnv() []option.ClientOption {
	creds := envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	if creds == "" {
		creds = envutil.String("GOOGLE_APPLICATION_CREDENTIALS", "")
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
