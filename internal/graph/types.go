package graph

// OData type discriminators understood by the service. Each request body is a
// named structure carrying a fixed discriminator constant rather than an ad
// hoc map.
const (
	odataTypeWin32LobApp        = "#microsoft.graph.win32LobApp"
	odataTypePowerShellRule     = "#microsoft.graph.win32LobAppPowerShellScriptRule"
	odataTypeInstallExperience  = "#microsoft.graph.win32LobAppInstallExperience"
	odataTypeReturnCode         = "#microsoft.graph.win32LobAppReturnCode"
	odataTypeContentFile        = "#microsoft.graph.mobileAppContentFile"
	odataTypeFileEncryptionInfo = "microsoft.graph.fileEncryptionInfo"
)

// Upload states reported for a content file.
const (
	UploadStateCommitFailed = "commitFileFailed"
)

// PublishingStatePublished is the terminal application lifecycle state.
const PublishingStatePublished = "published"

type win32LobAppRequest struct {
	ODataType                      string              `json:"@odata.type"`
	DisplayName                    string              `json:"displayName"`
	Description                    string              `json:"description"`
	Publisher                      string              `json:"publisher"`
	FileName                       string              `json:"fileName"`
	SetupFilePath                  string              `json:"setupFilePath"`
	InstallCommandLine             string              `json:"installCommandLine"`
	UninstallCommandLine           string              `json:"uninstallCommandLine"`
	ApplicableArchitectures        string              `json:"applicableArchitectures"`
	MinimumSupportedWindowsRelease string              `json:"minimumSupportedWindowsRelease"`
	Rules                          []powerShellRule    `json:"rules"`
	InstallExperience              installExperience   `json:"installExperience"`
	ReturnCodes                    []returnCode        `json:"returnCodes"`
}

type powerShellRule struct {
	ODataType             string `json:"@odata.type"`
	RuleType              string `json:"ruleType"`
	EnforceSignatureCheck bool   `json:"enforceSignatureCheck"`
	RunAs32Bit            bool   `json:"runAs32Bit"`
	ScriptContent         string `json:"scriptContent"`
	OperationType         string `json:"operationType"`
	Operator              string `json:"operator"`
}

type installExperience struct {
	ODataType             string `json:"@odata.type"`
	RunAsAccount          string `json:"runAsAccount"`
	DeviceRestartBehavior string `json:"deviceRestartBehavior"`
}

type returnCode struct {
	ODataType  string `json:"@odata.type"`
	ReturnCode int    `json:"returnCode"`
	Type       string `json:"type"`
}

type contentFileRequest struct {
	ODataType     string `json:"@odata.type"`
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	SizeEncrypted int64  `json:"sizeEncrypted"`
	IsDependency  bool   `json:"isDependency"`
}

// FileEncryptionInfo is the encryption metadata submitted with a file
// commit. Field values are the base64 strings from the package descriptor,
// passed through untouched.
type FileEncryptionInfo struct {
	ODataType            string `json:"@odata.type"`
	EncryptionKey        string `json:"encryptionKey"`
	InitializationVector string `json:"initializationVector"`
	Mac                  string `json:"mac"`
	MacKey               string `json:"macKey"`
	ProfileIdentifier    string `json:"profileIdentifier"`
	FileDigest           string `json:"fileDigest"`
	FileDigestAlgorithm  string `json:"fileDigestAlgorithm"`
}

type commitFileRequest struct {
	FileEncryptionInfo FileEncryptionInfo `json:"fileEncryptionInfo"`
}

type committedVersionPatch struct {
	ODataType               string `json:"@odata.type"`
	CommittedContentVersion string `json:"committedContentVersion"`
}

// MobileApp is the application resource subset consumed by the pipeline.
type MobileApp struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName"`
	PublishingState string `json:"publishingState"`
}

type contentVersion struct {
	ID string `json:"id"`
}

// ContentFile is the file placeholder resource. AzureStorageURI is populated
// asynchronously by the service; IsCommitted/UploadState track the commit.
type ContentFile struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Size            int64  `json:"size"`
	SizeEncrypted   int64  `json:"sizeEncrypted"`
	AzureStorageURI string `json:"azureStorageUri"`
	IsCommitted     bool   `json:"isCommitted"`
	UploadState     string `json:"uploadState"`
}
