package config

import "time"

type ClientConfig interface {
	GetHTTPTimeout() time.Duration
	GetRefreshTimeout() time.Duration
	GetQueueTimeout() time.Duration
	GetUserAgent() string
}

type Client struct{}

var _ ClientConfig = Client{}

func (Client) GetHTTPTimeout() time.Duration {
	return GetEnvDuration("HTTP_TIMEOUT", 30*time.Second)
}

// GetRefreshTimeout bounds a single call to the refresh endpoint.
func (Client) GetRefreshTimeout() time.Duration {
	return GetEnvDuration("REFRESH_TIMEOUT", 10*time.Second)
}

// GetQueueTimeout bounds how long a request may wait for an in-flight refresh and its replay.
func (Client) GetQueueTimeout() time.Duration {
	return GetEnvDuration("QUEUE_TIMEOUT", 30*time.Second)
}

func (Client) GetUserAgent() string {
	return "go-blog-client/1.0"
}
