package graph

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/intunedeploy/internal/pollx"
)

const mobileAppsPath = "/deviceAppManagement/mobileApps"

// storageURIPollInterval is how often the file placeholder is re-fetched
// while waiting for the service to issue a write-destination URI.
// Variable as a test seam.
var storageURIPollInterval = 5 * time.Second

var nonWordChars = regexp.MustCompile(`\W+`)

// AppMetadata describes the Win32 application shell to create.
type AppMetadata struct {
	DisplayName string
	Description string
	Publisher   string

	// InstallerFileName is the payload file name from the package descriptor.
	InstallerFileName string

	// PackageID is the winget package identifier embedded in the generated
	// install/uninstall command lines.
	PackageID string
}

// installCommands derives the install and uninstall command lines from the
// display name and package id. The log file name keeps word characters only.
func installCommands(displayName, packageID string) (install, uninstall string) {
	logBase := nonWordChars.ReplaceAllString(displayName, "")
	if logBase == "" {
		logBase = "Package"
	}

	install = fmt.Sprintf(`powershell.exe -executionpolicy bypass -file Winget-InstallPackage.ps1 -mode install -PackageID "%s" -Log "%s.log"`,
		packageID, logBase)
	uninstall = strings.Replace(install, "-mode install", "-mode uninstall", 1)
	return install, uninstall
}

// CreateWin32App creates the application shell record and returns its
// assigned identifier. Description defaults to the display name and
// publisher to "Unknown". The detection rule is a trivial always-succeeds
// script; real detection logic is the operator's concern after publish.
func (c *Client) CreateWin32App(ctx context.Context, meta AppMetadata) (string, error) {
	description := meta.Description
	if description == "" {
		description = meta.DisplayName
	}
	publisher := meta.Publisher
	if publisher == "" {
		publisher = "Unknown"
	}

	install, uninstall := installCommands(meta.DisplayName, meta.PackageID)

	body := win32LobAppRequest{
		ODataType:                      odataTypeWin32LobApp,
		DisplayName:                    meta.DisplayName,
		Description:                    description,
		Publisher:                      publisher,
		FileName:                       meta.InstallerFileName,
		SetupFilePath:                  meta.InstallerFileName,
		InstallCommandLine:             install,
		UninstallCommandLine:           uninstall,
		ApplicableArchitectures:        "x64",
		MinimumSupportedWindowsRelease: "1607",
		Rules: []powerShellRule{{
			ODataType:     odataTypePowerShellRule,
			RuleType:      "detection",
			ScriptContent: base64.StdEncoding.EncodeToString([]byte("exit 0")),
			OperationType: "notConfigured",
			Operator:      "notConfigured",
		}},
		InstallExperience: installExperience{
			ODataType:             odataTypeInstallExperience,
			RunAsAccount:          "system",
			DeviceRestartBehavior: "suppress",
		},
		ReturnCodes: []returnCode{{
			ODataType:  odataTypeReturnCode,
			ReturnCode: 0,
			Type:       "success",
		}},
	}

	var app MobileApp
	if err := c.do(ctx, "POST", mobileAppsPath, body, &app); err != nil {
		return "", err
	}
	return app.ID, nil
}

// CreateContentVersion registers a new content version for the application.
func (c *Client) CreateContentVersion(ctx context.Context, appID string) (string, error) {
	path := fmt.Sprintf("%s/%s/microsoft.graph.win32LobApp/contentVersions", mobileAppsPath, appID)

	var version contentVersion
	if err := c.do(ctx, "POST", path, struct{}{}, &version); err != nil {
		return "", err
	}
	return version.ID, nil
}

// CreateContentFile registers a file placeholder in the content version.
// size is the cleartext byte count, sizeEncrypted the ciphertext byte count.
func (c *Client) CreateContentFile(ctx context.Context, appID, versionID, name string, size, sizeEncrypted int64) (*ContentFile, error) {
	path := fmt.Sprintf("%s/%s/microsoft.graph.win32LobApp/contentVersions/%s/files", mobileAppsPath, appID, versionID)

	body := contentFileRequest{
		ODataType:     odataTypeContentFile,
		Name:          name,
		Size:          size,
		SizeEncrypted: sizeEncrypted,
	}

	file := &ContentFile{}
	if err := c.do(ctx, "POST", path, body, file); err != nil {
		return nil, err
	}
	return file, nil
}

// GetContentFile fetches the current state of a file placeholder.
func (c *Client) GetContentFile(ctx context.Context, appID, versionID, fileID string) (*ContentFile, error) {
	path := fmt.Sprintf("%s/%s/microsoft.graph.win32LobApp/contentVersions/%s/files/%s", mobileAppsPath, appID, versionID, fileID)

	file := &ContentFile{}
	if err := c.do(ctx, "GET", path, nil, file); err != nil {
		return nil, err
	}
	return file, nil
}

// WaitForStorageURI polls the file placeholder every 5 seconds until the
// service has issued a write-destination URI, or until timeout elapses.
// Fetch failures (including 404) are fatal and end the wait immediately.
func (c *Client) WaitForStorageURI(ctx context.Context, appID, versionID, fileID string, timeout time.Duration) (*ContentFile, error) {
	var file *ContentFile

	err := pollx.Until(ctx, storageURIPollInterval, timeout, func(ctx context.Context) (bool, error) {
		f, err := c.GetContentFile(ctx, appID, versionID, fileID)
		if err != nil {
			return false, err
		}
		c.logger.Info(ctx, "storage uri poll", "fileId", fileID, "uploadState", f.UploadState, "uriIssued", f.AzureStorageURI != "")
		if f.AzureStorageURI == "" {
			return false, nil
		}
		file = f
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for storage uri: %w", err)
	}
	return file, nil
}

// CommitContentFile submits the package encryption metadata for the uploaded
// file, asking the service to begin commit processing.
func (c *Client) CommitContentFile(ctx context.Context, appID, versionID, fileID string, enc FileEncryptionInfo) error {
	path := fmt.Sprintf("%s/%s/microsoft.graph.win32LobApp/contentVersions/%s/files/%s/commit", mobileAppsPath, appID, versionID, fileID)

	enc.ODataType = odataTypeFileEncryptionInfo
	return c.do(ctx, "POST", path, commitFileRequest{FileEncryptionInfo: enc}, nil)
}

// CommitContentVersion marks versionID as the application's committed
// content version. Without this the application stays notPublished even
// after its file commits.
func (c *Client) CommitContentVersion(ctx context.Context, appID, versionID string) error {
	body := committedVersionPatch{
		ODataType:               odataTypeWin32LobApp,
		CommittedContentVersion: versionID,
	}
	return c.do(ctx, "PATCH", mobileAppsPath+"/"+appID, body, nil)
}

// GetApp fetches the application resource.
func (c *Client) GetApp(ctx context.Context, appID string) (*MobileApp, error) {
	app := &MobileApp{}
	if err := c.do(ctx, "GET", mobileAppsPath+"/"+appID, nil, app); err != nil {
		return nil, err
	}
	return app, nil
}
