package discovery

import (
	"strings"
)

// TXT record keys read from device advertisements. Devices differ in which
// keys they publish, so several aliases are accepted per field.
var (
	txtKeysModel    = []string{"model", "md", "name"}
	txtKeysSerial   = []string{"serial", "sn"}
	txtKeysFirmware = []string{"fw", "firmware", "version"}
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// StringsToTXTRecords converts zeroconf TXT strings ("key=value") to a map.
// Keys are lower-cased.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[strings.ToLower(parts[0])] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[strings.ToLower(parts[0])] = ""
		}
	}
	return txt
}

// first returns the first non-empty value among keys.
func (t TXTRecordMap) first(keys []string) string {
	for _, k := range keys {
		if v := t[k]; v != "" {
			return v
		}
	}
	return ""
}

// Model returns the advertised model name.
func (t TXTRecordMap) Model() string { return t.first(txtKeysModel) }

// Serial returns the advertised serial number.
func (t TXTRecordMap) Serial() string { return t.first(txtKeysSerial) }

// Firmware returns the advertised firmware version.
func (t TXTRecordMap) Firmware() string { return t.first(txtKeysFirmware) }
