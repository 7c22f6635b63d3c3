package config

type EndpointsConfig interface {
	GetLoginPath() string
	GetRefreshPath() string
	GetLogoutPath() string
}

type Endpoints struct{}

var _ EndpointsConfig = Endpoints{}

func (Endpoints) GetLoginPath() string {
	return "/auth/login"
}

func (Endpoints) GetRefreshPath() string {
	return GetEnv("REFRESH_PATH", "/auth/refresh-token")
}

func (Endpoints) GetLogoutPath() string {
	return "/auth/logout"
}
