// Package intunewin reads .intunewin package containers produced by the
// Microsoft Win32 Content Prep Tool and decrypts their payloads.
//
// A container is a zip archive holding a metadata document
// (IntuneWinPackage/Metadata/Detection.xml) and an encrypted installer
// payload (IntuneWinPackage/Contents/<FileName>).
package intunewin

import (
	"archive/zip"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/intunedeploy/internal/common"
)

const (
	detectionXMLPath = "IntuneWinPackage/Metadata/Detection.xml"
	contentsPrefix   = "IntuneWinPackage/Contents/"
)

// Descriptor holds the subset of Detection.xml this pipeline consumes.
// All EncryptionInfo fields stay base64-encoded as found in the document;
// the commit request sends them back verbatim. Key and IV decode them
// for the decryptor. A Descriptor is immutable once parsed.
type Descriptor struct {
	FileName            string
	UnencryptedSize     int64
	EncryptionKey       string
	InitializationVec   string
	Mac                 string
	MacKey              string
	ProfileIdentifier   string
	FileDigest          string
	FileDigestAlgorithm string
}

// Key returns the decoded AES key.
func (d *Descriptor) Key() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(d.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	return b, nil
}

// IV returns the decoded initialization vector.
func (d *Descriptor) IV() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(d.InitializationVec)
	if err != nil {
		return nil, fmt.Errorf("decode initialization vector: %w", err)
	}
	return b, nil
}

type detectionXML struct {
	FileName               string             `xml:"FileName"`
	UnencryptedContentSize int64              `xml:"UnencryptedContentSize"`
	EncryptionInfo         *encryptionInfoXML `xml:"EncryptionInfo"`
}

type encryptionInfoXML struct {
	EncryptionKey        string `xml:"EncryptionKey"`
	InitializationVector string `xml:"InitializationVector"`
	Mac                  string `xml:"Mac"`
	MacKey               string `xml:"MacKey"`
	ProfileIdentifier    string `xml:"ProfileIdentifier"`
	FileDigest           string `xml:"FileDigest"`
	FileDigestAlgorithm  string `xml:"FileDigestAlgorithm"`
}

// Open reads the container at path, parses its descriptor and extracts the
// still-encrypted payload to a scratch file alongside the container.
// The caller owns the extracted file and should remove it when done.
//
// Fails with common.ErrNotFound if the archive cannot be opened and with
// common.ErrMalformedContainer if the descriptor document or its
// EncryptionInfo section is absent.
func Open(path string) (*Descriptor, string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: open %s: %v", common.ErrNotFound, path, err)
	}
	defer zr.Close()

	doc, err := readDetectionXML(&zr.Reader)
	if err != nil {
		return nil, "", err
	}

	if doc.EncryptionInfo == nil {
		return nil, "", fmt.Errorf("%w: EncryptionInfo not found in Detection.xml", common.ErrMalformedContainer)
	}
	if doc.FileName == "" {
		return nil, "", fmt.Errorf("%w: FileName missing in Detection.xml", common.ErrMalformedContainer)
	}

	desc := &Descriptor{
		FileName:            doc.FileName,
		UnencryptedSize:     doc.UnencryptedContentSize,
		EncryptionKey:       doc.EncryptionInfo.EncryptionKey,
		InitializationVec:   doc.EncryptionInfo.InitializationVector,
		Mac:                 doc.EncryptionInfo.Mac,
		MacKey:              doc.EncryptionInfo.MacKey,
		ProfileIdentifier:   doc.EncryptionInfo.ProfileIdentifier,
		FileDigest:          doc.EncryptionInfo.FileDigest,
		FileDigestAlgorithm: doc.EncryptionInfo.FileDigestAlgorithm,
	}
	if desc.FileDigestAlgorithm == "" {
		desc.FileDigestAlgorithm = "SHA256"
	}

	encryptedPath, err := extractPayload(&zr.Reader, desc.FileName, filepath.Dir(path))
	if err != nil {
		return nil, "", err
	}

	return desc, encryptedPath, nil
}

func readDetectionXML(zr *zip.Reader) (*detectionXML, error) {
	f, err := zr.Open(detectionXMLPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s missing", common.ErrMalformedContainer, detectionXMLPath)
	}
	defer f.Close()

	doc := &detectionXML{}
	if err := xml.NewDecoder(f).Decode(doc); err != nil {
		return nil, fmt.Errorf("%w: parse Detection.xml: %v", common.ErrMalformedContainer, err)
	}
	return doc, nil
}

// extractPayload copies the encrypted payload entry to dir, returning the
// path of the written file.
func extractPayload(zr *zip.Reader, fileName, dir string) (string, error) {
	src, err := zr.Open(contentsPrefix + fileName)
	if err != nil {
		return "", fmt.Errorf("%w: payload %s missing", common.ErrMalformedContainer, contentsPrefix+fileName)
	}
	defer src.Close()

	dstPath := filepath.Join(dir, fileName)
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("extract payload: %w", err)
	}
	return dstPath, nil
}
