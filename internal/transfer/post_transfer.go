package transfer

import "github.com/scrapbook/monthbook/internal/models"

// PostCreation is the create-post request body. Month is a pointer so a
// missing field can be told apart from month 0.
type PostCreation struct {
	Type      string               `json:"type"`
	Title     string               `json:"title"`
	Month     *int                 `json:"month"`
	Content   string               `json:"content"`
	Caption   string               `json:"caption"`
	CreatedBy string               `json:"createdBy"`
	Published *bool                `json:"published"`
	Order     *int                 `json:"order"`
	Metadata  *models.FileMetadata `json:"metadata"`
	Tags      []string             `json:"tags"`
}

type UploadURLRequest struct {
	FileName    string `json:"fileName"`
	FileType    string `json:"fileType"`
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
}

type UploadURLResponse struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	FileName string `json:"fileName"`
}
