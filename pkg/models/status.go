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

// MinerStatus is the persisted lifecycle status of a KnownMiner.
type MinerStatus string

const (
	StatusActive    MinerStatus = "Active"
	StatusInactive  MinerStatus = "Inactive"
	StatusResetting MinerStatus = "Resetting"
	StatusOffline   MinerStatus = "Offline"
)

// Managed reports whether a Monitor may run for a miner in this status.
func (s MinerStatus) Managed() bool {
	return s == StatusActive || s == StatusOffline
}

// State messages written by the monitor, the reset workflow and onboarding.
const (
	StateConnected         = "Connected"
	StateDisconnected      = "Disconnected"
	StateStopped           = "Stopped"
	StateDetected          = "Detected"
	StateAwaitingReset     = "Awaiting Reset"
	StateSynced            = "Synced"
	StateCaptured          = "Captured"
	StateCaptureFailed     = "Capture Failed"
	StateActionError       = "Action Error"
	StateActionTimeout     = "Action Timeout"
	StatePortBusy          = "Port Busy Error"
	StateToolError         = "esptool Error"
	StateToolNotFound      = "Tool Not Found"
	StateOnboardedActive   = "Onboarded (Active)"
	StateOnboardedInactive = "Onboarded (Inactive)"
)
