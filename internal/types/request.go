package types

// RequestType classifies a remote call for logging and error reporting
type RequestType string

const (
	RequestTypeGetByID      RequestType = "get_by_id"
	RequestTypeListOrSearch RequestType = "list_or_search"
	RequestTypeMutation     RequestType = "mutation"
	RequestTypeDownload     RequestType = "download"
	RequestTypeUpload       RequestType = "upload"
)

// RequestContext carries tracing information for one remote operation
type RequestContext struct {
	Profile           string
	InvolvedFileIDs   []string
	InvolvedParentIDs []string
	RequestType       RequestType
	TraceID           string
}
