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

package api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/shepherd/pkg/models"
)

func TestParseMinerCSV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []models.KnownMiner
		wantErr error
	}{
		{
			name: "canonical columns",
			input: "miner_id,port_path,usb_serial,vendor_id,product_id,firmware_version,location_notes\n" +
				"rig-1,1-1.1,S1,303a,1001,1.2.0,rack 1\n",
			want: []models.KnownMiner{{
				MinerID: "rig-1", PortPath: "1-1.1", USBSerial: "S1", VendorID: "303a", ProductID: "1001",
				FirmwareVersion: "1.2.0", LocationNotes: "rack 1",
			}},
		},
		{
			name: "udev attribute spellings",
			input: "\ufeffminer_id,port_path,ATTRS_serial,ATTRS_idVendor,ATTRS_idProduct,nerdminer_vrs,extra\n" +
				"rig-2, 1-1.2 ,S2,1a86,7523,v1.6.3,ignored\n\n",
			want: []models.KnownMiner{{
				MinerID: "rig-2", PortPath: "1-1.2", USBSerial: "S2", VendorID: "1a86", ProductID: "7523",
				FirmwareVersion: "v1.6.3",
			}},
		},
		{
			name:  "header only",
			input: "miner_id,port_path,usb_serial\n",
		},
		{
			name:    "empty body",
			input:   "",
			wantErr: errCSVEmpty,
		},
		{
			name:    "missing serial column",
			input:   "miner_id,port_path\nrig-1,1-1.1\n",
			wantErr: errCSVMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMinerCSV(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMinerCSVRejectsPartialRow(t *testing.T) {
	_, err := ParseMinerCSV(strings.NewReader("miner_id,port_path,usb_serial\nrig-1,1-1.1,S1\nrig-2,,S2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}
