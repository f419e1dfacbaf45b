package entity

const megabyte = 1 << 20

// FileMeta describes a file a guest wants to upload, before any bytes are stored.
type FileMeta struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	TableNumber int    `json:"table_number"`
}

// TooLarge checks the size against a limit given in megabytes.
func (f FileMeta) TooLarge(maxMB int) bool {
	return f.Size > int64(maxMB)*megabyte
}

// UploadTicket is handed out by the upload gate; the caller stores the file
// and passes the ticket back to complete tracking.
type UploadTicket struct {
	Code *AccessCode `json:"code"`
	File FileMeta    `json:"file"`
}

type UploadResult struct {
	FileId  string `json:"file_id"`
	UsageId string `json:"usage_id,omitempty"`
	Code    string `json:"code"`
	Warning string `json:"warning,omitempty"`
}
