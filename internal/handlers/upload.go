package handlers

import (
	"context"
	"errors"
	"log"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"pairchat/internal/apperr"
	"pairchat/internal/media"
)

const multipartMemory = 8 << 20

// parseMultipart caps the request body at maxBytes and parses the form.
// ok is false when a response was already written.
func parseMultipart(c *gin.Context, maxBytes int64) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return false
		}
		badRequest(c, "body", "invalid multipart form")
		return false
	}
	return true
}

// formFile is an uploaded form file that reaches the media store only when
// Store is called.
type formFile struct {
	store  media.Store
	header *multipart.FileHeader
}

// attachedFile returns the "file" part of a parsed form, if there is one.
func attachedFile(c *gin.Context, store media.Store) (*formFile, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, false
	}
	return &formFile{store: store, header: header}, true
}

func (f *formFile) Store(ctx context.Context) (string, error) {
	file, err := f.header.Open()
	if err != nil {
		return "", apperr.Invalid("file", "unreadable file")
	}
	defer file.Close()

	ref, err := f.store.Save(ctx, f.header.Filename, file)
	if errors.Is(err, media.ErrMissingExtension) {
		return "", apperr.Invalid("file", err.Error())
	}
	return ref, err
}

func (f *formFile) Discard(ctx context.Context, ref string) {
	if err := f.store.Delete(ctx, ref); err != nil {
		log.Printf("media discard failed ref=%s err=%v", ref, err)
	}
}

// saveUpload stores the "file" part of a parsed form right away and returns
// the file with its reference.
func saveUpload(c *gin.Context, store media.Store) (*formFile, string, bool) {
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "media uploads are disabled"})
		return nil, "", false
	}
	file, ok := attachedFile(c, store)
	if !ok {
		badRequest(c, "file", "missing file")
		return nil, "", false
	}
	ref, err := file.Store(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return nil, "", false
	}
	return file, ref, true
}
