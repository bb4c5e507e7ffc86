package domain

import "time"

// Certificate ties an uploaded blob, its metadata, and a shareable id
// together. ID and ShareableID are assigned at creation and never change;
// only Title and CredentialLink are mutable afterwards.
type Certificate struct {
	ID             int64
	Title          string
	CredentialLink string
	FileName       string
	FileType       string
	BlobKey        string
	BlobBucket     string
	FileSize       int64
	ShareableID    string
	UploadedAt     time.Time
}

// CertificateView is the wire shape returned by the API. The blob reference
// stays internal; clients only see the shareable URL.
type CertificateView struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	CredentialLink string `json:"credentialLink"`
	FileName       string `json:"fileName"`
	FileType       string `json:"fileType"`
	FileSize       int64  `json:"fileSize"`
	ShareableID    string `json:"shareableId"`
	UploadedAt     string `json:"uploadedAt"`
	ShareableURL   string `json:"shareableUrl"`
}

// View builds the wire representation of a certificate.
func (c Certificate) View() CertificateView {
	return CertificateView{
		ID:             c.ID,
		Title:          c.Title,
		CredentialLink: c.CredentialLink,
		FileName:       c.FileName,
		FileType:       c.FileType,
		FileSize:       c.FileSize,
		ShareableID:    c.ShareableID,
		UploadedAt:     c.UploadedAt.Format("2006-01-02 15:04:05"),
		ShareableURL:   "/view/" + c.ShareableID,
	}
}
