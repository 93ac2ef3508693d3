// Package azblob streams a payload to an Azure block blob over raw HTTP.
//
// The write-destination URI issued by the management service already carries
// a SAS token, so no SDK or extra signing is involved: each block is PUT with
// comp=block, then a comp=blocklist request materializes the blob. Blob
// content is defined by block-list order, not upload-completion order, which
// makes concurrent block uploads safe.
package azblob

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/dmitrijs2005/intunedeploy/internal/common"
	"github.com/dmitrijs2005/intunedeploy/internal/logging"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBlockSize is the chunk size for block uploads.
	DefaultBlockSize = 4 << 20

	// DefaultConcurrency bounds in-flight block PUTs.
	DefaultConcurrency = 4
)

type Uploader struct {
	http        *http.Client
	logger      logging.Logger
	blockSize   int
	concurrency int
}

// NewUploader builds a block-blob uploader. Zero blockSize or concurrency
// select the defaults; httpClient may be nil.
func NewUploader(httpClient *http.Client, logger logging.Logger, blockSize, concurrency int) *Uploader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Uploader{http: httpClient, logger: logger, blockSize: blockSize, concurrency: concurrency}
}

type blockList struct {
	XMLName xml.Name `xml:"BlockList"`
	Latest  []string `xml:"Latest"`
}

// blockID encodes the zero-padded 5-digit sequence number of a block.
func blockID(idx int) string {
	return base64.StdEncoding.EncodeToString(fmt.Appendf(nil, "%05d", idx))
}

// Upload reads path in fixed-size blocks, PUTs every block to the SAS URI
// (bounded concurrency, list order preserved) and commits the block list.
// Any non-2xx response aborts the upload with common.ErrUploadFailed;
// partial uploads are not resumed.
func (u *Uploader) Upload(ctx context.Context, path, sasURI string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open payload: %v", common.ErrUploadFailed, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat payload: %v", common.ErrUploadFailed, err)
	}
	u.logger.Info(ctx, "uploading payload to block blob", "path", path, "size", info.Size())

	return u.upload(ctx, f, sasURI)
}

func (u *Uploader) upload(ctx context.Context, r io.Reader, sasURI string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)

	var blocks []string
	var readErr error
	for idx := 0; ; idx++ {
		buf := make([]byte, u.blockSize)
		n, rerr := io.ReadFull(r, buf)
		if rerr == io.EOF {
			break
		}
		if rerr != nil && rerr != io.ErrUnexpectedEOF {
			readErr = fmt.Errorf("%w: read payload: %v", common.ErrUploadFailed, rerr)
			break
		}

		id := blockID(idx)
		blocks = append(blocks, id)

		chunk := buf[:n]
		g.Go(func() error {
			return u.putBlock(gctx, sasURI, id, chunk)
		})

		if rerr == io.ErrUnexpectedEOF {
			break
		}
	}

	// in-flight block PUTs must not outlive this call
	waitErr := g.Wait()
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		return waitErr
	}

	u.logger.Info(ctx, "all blocks uploaded, committing block list", "blocks", len(blocks))
	return u.putBlockList(ctx, sasURI, blocks)
}

func (u *Uploader) putBlock(ctx context.Context, sasURI, id string, data []byte) error {
	dst, err := withQuery(sasURI, map[string]string{"comp": "block", "blockid": id})
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUploadFailed, err)
	}

	u.logger.Debug(ctx, "putting block", "blockid", id, "size", len(data))
	return u.put(ctx, dst, bytes.NewReader(data), "")
}

func (u *Uploader) putBlockList(ctx context.Context, sasURI string, blocks []string) error {
	dst, err := withQuery(sasURI, map[string]string{"comp": "blocklist"})
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUploadFailed, err)
	}

	body, err := xml.Marshal(blockList{Latest: blocks})
	if err != nil {
		return fmt.Errorf("%w: encode block list: %v", common.ErrUploadFailed, err)
	}

	return u.put(ctx, dst, bytes.NewReader(append([]byte(xml.Header), body...)), "application/xml")
}

func (u *Uploader) put(ctx context.Context, dst string, body io.Reader, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, dst, body)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUploadFailed, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", common.ErrUploadFailed, resp.StatusCode, b)
	}
	return nil
}

// withQuery returns raw with the given parameters merged into its query
// string, preserving the SAS token parameters already present.
func withQuery(raw string, params map[string]string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse destination uri: %w", err)
	}
	q := parsed.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
