// Package api defines public API contracts for plcsim-starter.
package api

// AccessToken is the cooperative lock plus cancellation flag granted by the
// engineering session for the duration of one phase.
type AccessToken interface {
	// SetText updates the progress text shown to the user.
	SetText(text string)
	// CancellationRequested reports whether the user asked to cancel.
	CancellationRequested() bool
	// Release gives the lock back. Safe to call more than once.
	Release()
}

// TLSVerification selects how the online connection treats the device certificate.
type TLSVerification int

const (
	TLSVerificationDefault TLSVerification = iota
	TLSVerificationTrusted
)

// Device is a controller as the engineering model knows it.
type Device interface {
	Name() string
	// TypeIdentifier is the controller family, e.g. "System:Device.S71500".
	TypeIdentifier() string
	// PrimaryInterface returns the network attributes of the X1 Ethernet interface.
	PrimaryInterface() (NetworkIdentity, error)
	GoOnline() error
	GoOffline() error
	// TrustOnline registers how the next online connection handles TLS verification.
	TrustOnline(v TLSVerification) error
	Download(target DownloadTarget, pre PreDownloadPolicy, post PostDownloadPolicy) (DownloadResult, error)
	// ApplyConfiguration makes target the online connection path of the device.
	ApplyConfiguration(target DownloadTarget) error
}

// Engineering is the host engineering session the orchestrator attaches to.
type Engineering interface {
	ExclusiveAccess(text string) (AccessToken, error)
	// Device looks a controller up by name in the open project.
	Device(name string) (Device, error)
}
