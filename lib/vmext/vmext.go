// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

// Package vmext drives VM service extensions on a running app. The
// run daemon proxies "ext.*" methods into the app's Dart VM through
// app.callServiceExtension; this package wraps the common toggles in
// typed calls so the UI does not build raw parameter maps. A Client
// holds only a command handle, so any background task may use one
// without owning the session.
package vmext

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/runmux/runmux/lib/command"
	"github.com/runmux/runmux/lib/protocol"
)

// Extension method names understood by the Flutter framework.
const (
	ExtensionDebugPaint         = "ext.flutter.debugPaint"
	ExtensionPerformanceOverlay = "ext.flutter.showPerformanceOverlay"
	ExtensionPaintBaselines     = "ext.flutter.debugPaintBaselinesEnabled"
	ExtensionSlowAnimations     = "ext.flutter.timeDilation"
	ExtensionPlatformOverride   = "ext.flutter.platformOverride"
	ExtensionRepaintRainbow     = "ext.flutter.repaintRainbow"
	ExtensionBrightness         = "ext.flutter.brightnessOverride"
)

// Client issues service-extension calls for one attached app.
type Client struct {
	handle command.Handle
	appID  string
}

// New returns a client bound to the given app.
func New(handle command.Handle, appID string) *Client {
	return &Client{handle: handle, appID: appID}
}

// callParams is the app.callServiceExtension request body.
type callParams struct {
	AppID      string         `json:"appId"`
	MethodName string         `json:"methodName"`
	Params     map[string]any `json:"params,omitempty"`
}

// Call invokes an arbitrary extension method and decodes its result
// object. A nil params map sends no arguments.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	response, err := c.handle.Send(ctx, protocol.MethodAppCallServiceExtension, callParams{
		AppID:      c.appID,
		MethodName: method,
		Params:     params,
	})
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	if len(response.Result) == 0 {
		return nil, nil
	}
	var result map[string]any
	if err := json.Unmarshal(response.Result, &result); err != nil {
		return nil, fmt.Errorf("decoding %s result: %w", method, err)
	}
	return result, nil
}

// boolString renders a flag the way the framework's extension handlers
// expect: string-encoded booleans.
func boolString(enabled bool) string {
	if enabled {
		return "true"
	}
	return "false"
}

// SetDebugPaint toggles layout debug painting.
func (c *Client) SetDebugPaint(ctx context.Context, enabled bool) error {
	_, err := c.Call(ctx, ExtensionDebugPaint, map[string]any{"enabled": boolString(enabled)})
	return err
}

// SetPerformanceOverlay toggles the frame-time overlay.
func (c *Client) SetPerformanceOverlay(ctx context.Context, enabled bool) error {
	_, err := c.Call(ctx, ExtensionPerformanceOverlay, map[string]any{"enabled": boolString(enabled)})
	return err
}

// SetPaintBaselines toggles text baseline painting.
func (c *Client) SetPaintBaselines(ctx context.Context, enabled bool) error {
	_, err := c.Call(ctx, ExtensionPaintBaselines, map[string]any{"enabled": boolString(enabled)})
	return err
}

// SetRepaintRainbow toggles repaint-region coloring.
func (c *Client) SetRepaintRainbow(ctx context.Context, enabled bool) error {
	_, err := c.Call(ctx, ExtensionRepaintRainbow, map[string]any{"enabled": boolString(enabled)})
	return err
}

// SetTimeDilation scales animation speed. 1.0 is real time; 5.0 is
// the usual slow-animations factor.
func (c *Client) SetTimeDilation(ctx context.Context, factor float64) error {
	_, err := c.Call(ctx, ExtensionSlowAnimations, map[string]any{
		"timeDilation": fmt.Sprintf("%g", factor),
	})
	return err
}

// PlatformOverride sets the framework's reported target platform
// ("iOS", "android", "fuchsia", "macOS", "linux", "windows") and
// returns the value now in effect. An empty value clears the override.
func (c *Client) PlatformOverride(ctx context.Context, platform string) (string, error) {
	params := map[string]any{}
	if platform != "" {
		params["value"] = platform
	}
	result, err := c.Call(ctx, ExtensionPlatformOverride, params)
	if err != nil {
		return "", err
	}
	value, _ := result["value"].(string)
	return value, nil
}

// SetBrightness overrides the platform brightness ("Brightness.light"
// or "Brightness.dark").
func (c *Client) SetBrightness(ctx context.Context, brightness string) error {
	_, err := c.Call(ctx, ExtensionBrightness, map[string]any{"value": brightness})
	return err
}
