package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
)

// File describes one part of a multipart upload.
type File struct {
	FieldName string
	FileName  string
	Content   io.Reader
}

// Upload issues a POST with a multipart/form-data body built from
// files and fields, over RequestDescriptor.body per spec.md §1's
// convenience-wrapper contract.
func (c *Client) Upload(ctx context.Context, url string, files []File, fields map[string]string, opts Descriptor) (any, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("upload: write field %q: %w", k, err)
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.FieldName, f.FileName)
		if err != nil {
			return nil, fmt.Errorf("upload: create form file %q: %w", f.FieldName, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("upload: copy %q: %w", f.FileName, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("upload: close writer: %w", err)
	}

	if opts.Headers == nil {
		opts.Headers = map[string]string{}
	}
	opts.Headers["Content-Type"] = w.FormDataContentType()
	opts.Body = bytes.NewReader(buf.Bytes())

	return c.verb(ctx, "POST", url, opts)
}
