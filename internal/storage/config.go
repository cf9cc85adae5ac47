package storage

import "time"

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	// URLExpiry bounds presigned download URLs (S3 caps it at 7 days).
	URLExpiry time.Duration
}

// Enabled reports whether an endpoint is configured.
func (c *MinIOConfig) Enabled() bool {
	return c != nil && c.Endpoint != ""
}

func (c *MinIOConfig) urlExpiry() time.Duration {
	if c.URLExpiry <= 0 || c.URLExpiry > 7*24*time.Hour {
		return 7 * 24 * time.Hour
	}
	return c.URLExpiry
}
