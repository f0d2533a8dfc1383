package relay

import (
	"os"
)

const UP = "UP"

type Health struct {
	Status   string `json:"status"`
	HostName string `json:"hostName"`
	Active   int    `json:"active"`
	Workers  int    `json:"workers"`
}

type AppInfo struct {
	Build BuildInfo `json:"build"`
}

type BuildInfo struct {
	Version string `json:"version"`
	Date    string `json:"date"`
	Tag     string `json:"tag"`
}

// DefaultHandlers serves health and build information.
type DefaultHandlers struct {
	Pool *WorkerPool
}

// Register mounts GET /health and GET /info.
func (h *DefaultHandlers) Register(m *Mapper) {
	res := NewResource(Actions{
		"health": h.Health,
		"info":   h.AppInfo,
	}, nil, nil)
	m.Connect("GET", "/health", "default", res, "health")
	m.Connect("GET", "/info", "default", res, "info")
}

func (h *DefaultHandlers) Health(c *Context, p Params) (interface{}, error) {
	health := &Health{Status: UP, HostName: Hostname()}
	if h.Pool != nil {
		health.Active = h.Pool.Active()
		health.Workers = h.Pool.Size()
	}
	return health, nil
}

func (h *DefaultHandlers) AppInfo(c *Context, p Params) (interface{}, error) {
	return &AppInfo{Build: BuildInfo{
		Version: os.Getenv("BUILD_VERSION"),
		Date:    os.Getenv("BUILD_DATE"),
		Tag:     os.Getenv("BUILD_TAG"),
	}}, nil
}
