// Package api defines public API contracts for plcsim-starter.
package api

import "fmt"

// DownloadTarget addresses the simulated interface a configuration is downloaded to.
type DownloadTarget struct {
	Mode              string `yaml:"mode"`
	PCInterface       string `yaml:"pc_interface"`
	PCInterfaceNumber int    `yaml:"pc_interface_number"`
	TargetInterface   string `yaml:"target_interface"`
}

func (t DownloadTarget) String() string {
	return fmt.Sprintf("%s/%s#%d/%s", t.Mode, t.PCInterface, t.PCInterfaceNumber, t.TargetInterface)
}

// DefaultDownloadTarget is the loopback adapter the simulator exposes.
func DefaultDownloadTarget() DownloadTarget {
	return DownloadTarget{
		Mode:              "PN/IE",
		PCInterface:       "PLCSIM",
		PCInterfaceNumber: 1,
		TargetInterface:   "1 X1",
	}
}

// PreDownloadPolicy answers the questions asked before a download starts.
type PreDownloadPolicy struct {
	CheckBeforeDownload bool
	StopAllModules      bool
	OverwriteSystemData bool
	ConsistentBlocks    bool
	ConsistentAlarmText bool
}

// PostDownloadPolicy answers the questions asked after a download finished.
type PostDownloadPolicy struct {
	StartModules bool
}

// DefaultPreDownloadPolicy confirms everything needed for an unattended full download.
func DefaultPreDownloadPolicy() PreDownloadPolicy {
	return PreDownloadPolicy{
		CheckBeforeDownload: true,
		StopAllModules:      true,
		OverwriteSystemData: true,
		ConsistentBlocks:    true,
		ConsistentAlarmText: true,
	}
}

// DefaultPostDownloadPolicy starts the modules once the download is done.
func DefaultPostDownloadPolicy() PostDownloadPolicy {
	return PostDownloadPolicy{StartModules: true}
}

// DownloadState is the overall outcome of a download.
type DownloadState int

const (
	DownloadError DownloadState = iota
	DownloadWarning
	DownloadSuccess
)

func (s DownloadState) String() string {
	switch s {
	case DownloadSuccess:
		return "Success"
	case DownloadWarning:
		return "Warning"
	default:
		return "Error"
	}
}

// DownloadResult is what the engineering API reports after a download.
type DownloadResult struct {
	State    DownloadState
	Messages []string
}
