package config

type Config interface {
	EnvConfig
	ClientConfig
	SessionConfig
	EndpointsConfig
}

type EnvConfig interface {
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
	GetLogLevel() string
	GetSessionFile() string
	GetSessionPassphrase() string
	GetSearchHistoryFile() string
}

type mainConfig struct {
	EnvVars
	Client
	Session
	Endpoints
}

func New() Config {
	return mainConfig{}
}
