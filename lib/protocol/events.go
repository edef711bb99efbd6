// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// Daemon event names. The daemon namespaces events as
// "<domain>.<name>"; these are the ones the engine acts on. Unlisted
// events still parse — the session layer logs and skips them.
const (
	// EventDaemonConnected is the daemon's hello, carrying its
	// version and pid.
	EventDaemonConnected = "daemon.connected"

	// EventDaemonLog is a daemon-level log message.
	EventDaemonLog = "daemon.logMessage"

	// EventAppStart reports that an app launch began and assigns the
	// appId used by all later app-scoped commands.
	EventAppStart = "app.start"

	// EventAppStarted reports that the app is up.
	EventAppStarted = "app.started"

	// EventAppProgress reports launch/reload progress text.
	EventAppProgress = "app.progress"

	// EventAppLog is one line of application log output.
	EventAppLog = "app.log"

	// EventAppStop reports that the app stopped.
	EventAppStop = "app.stop"
)

// Methods the engine sends.
const (
	// MethodAppRestart hot-reloads (fullRestart=false) or restarts
	// (fullRestart=true) a running app.
	MethodAppRestart = "app.restart"

	// MethodAppStop stops a running app.
	MethodAppStop = "app.stop"

	// MethodDeviceEnable starts device discovery. Discovery is
	// asynchronous; devices stream in after this returns.
	MethodDeviceEnable = "device.enable"

	// MethodDeviceGetDevices lists connected devices.
	MethodDeviceGetDevices = "device.getDevices"

	// MethodAppCallServiceExtension proxies an ext.* call into the
	// app's VM.
	MethodAppCallServiceExtension = "app.callServiceExtension"

	// MethodDaemonShutdown asks the daemon to exit.
	MethodDaemonShutdown = "daemon.shutdown"
)

// DaemonConnectedParams is the payload of EventDaemonConnected.
type DaemonConnectedParams struct {
	Version string `json:"version"`
	PID     int    `json:"pid"`
}

// DaemonLogParams is the payload of EventDaemonLog.
type DaemonLogParams struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// AppStartParams is the payload of EventAppStart.
type AppStartParams struct {
	AppID     string `json:"appId"`
	DeviceID  string `json:"deviceId"`
	Directory string `json:"directory"`
}

// AppStartedParams is the payload of EventAppStarted.
type AppStartedParams struct {
	AppID string `json:"appId"`
}

// AppProgressParams is the payload of EventAppProgress.
type AppProgressParams struct {
	AppID    string `json:"appId"`
	Message  string `json:"message"`
	Finished bool   `json:"finished"`
}

// AppLogParams is the payload of EventAppLog.
type AppLogParams struct {
	AppID string `json:"appId"`
	Log   string `json:"log"`
	Error bool   `json:"error"`
}

// AppStopParams is the payload of EventAppStop.
type AppStopParams struct {
	AppID string `json:"appId"`
}

// DeviceDescription is one entry in MethodDeviceGetDevices's result
// array.
type DeviceDescription struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Emulator bool   `json:"emulator"`
}

// RestartParams is the params object for MethodAppRestart.
type RestartParams struct {
	AppID       string `json:"appId"`
	FullRestart bool   `json:"fullRestart"`
	Reason      string `json:"reason,omitempty"`
}

// StopParams is the params object for MethodAppStop.
type StopParams struct {
	AppID string `json:"appId"`
}
