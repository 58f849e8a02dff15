/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"fmt"
	"strings"
)

// Device is an OS-observed serial device. It is never persisted.
type Device struct {
	PortPath  string `json:"port_path"`
	Serial    string `json:"serial_number"`
	VendorID  string `json:"vendor_id"`
	ProductID string `json:"product_id"`
	NodePath  string `json:"dev_path"`
}

// DeviceKey is the primary physical identity of a device: the USB topology
// path plus the (possibly synthesized) serial.
type DeviceKey struct {
	PortPath string
	Serial   string
}

func (k DeviceKey) String() string {
	return k.PortPath + "|" + k.Serial
}

func (d Device) Key() DeviceKey {
	return DeviceKey{PortPath: d.PortPath, Serial: d.Serial}
}

const placeholderSuffix = "_NOSERIAL"

// PlaceholderSerial is the synthesized serial for devices that report none.
// Combined with the port path it is stable for one boot session only.
func PlaceholderSerial(vendorID string) string {
	return fmt.Sprintf("VID_%s%s", strings.ToLower(vendorID), placeholderSuffix)
}

// IsPlaceholderSerial reports whether serial was synthesized.
func IsPlaceholderSerial(serial string) bool {
	return strings.HasPrefix(serial, "VID_") && strings.HasSuffix(serial, placeholderSuffix)
}
