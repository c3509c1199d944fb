package model

// Status is the outcome recorded for one attempted unit.
type Status string

// Manifest statuses.
const (
	StatusDownloaded     Status = "downloaded"
	StatusNotFound       Status = "not_found"
	StatusDownloadFailed Status = "download_failed"
	StatusUnpackFailed   Status = "unpack_failed"
)

// LogRecord is one manifest line.
type LogRecord struct {
	SubjectID    string
	SubjectLabel string
	ResourceID   string
	TypeName     string
	Status       Status
	Detail       string
}

// ManifestHeader lists the manifest columns in order.
var ManifestHeader = []string{"subject_id", "subject_label", "resource_id", "type_name", "status", "detail"}

// Row returns the record as manifest columns.
func (r LogRecord) Row() []string {
	return []string{r.SubjectID, r.SubjectLabel, r.ResourceID, r.TypeName, string(r.Status), r.Detail}
}
