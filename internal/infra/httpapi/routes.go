package httpapi

import (
	"net/url"
	"strings"
)

type Routes struct {
	Upload         string
	UploadField    string
	TeamTrigger    string
	Status         string
	Result         string
	History        string
	Health         string
	RecordedStream string
	LiveStream     string
}

func PlayerRoutes() Routes {
	return Routes{
		Upload:         "/api/analyze",
		UploadField:    "file",
		Status:         "/videos/{id}/status",
		Result:         "/api/results/{id}",
		History:        "/api/history",
		Health:         "/api/health",
		RecordedStream: "/ws/video-stream/{id}",
		LiveStream:     "/ws/analyze",
	}
}

func TeamRoutes() Routes {
	r := PlayerRoutes()
	r.Upload = "/videos"
	r.TeamTrigger = "/analysis/team/{id}"
	return r
}

func RoutesFor(mode string) Routes {
	if mode == "team" {
		return TeamRoutes()
	}
	return PlayerRoutes()
}

func expand(tpl, id string) string {
	return strings.ReplaceAll(tpl, "{id}", url.PathEscape(id))
}
