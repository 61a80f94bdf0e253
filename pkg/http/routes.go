package http

const (
	Ping    = "Ping"
	Version = "Version"

	Status  = "Status"
	Export  = "Export"
	History = "History"
	Events  = "Events"
	Publish = "Publish"
)
