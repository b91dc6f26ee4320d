package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeHubTXT creates the TXT records for a hub.
func EncodeHubTXT(info *HubInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyVersion] = info.Version
	if txt[TXTKeyVersion] == "" {
		txt[TXTKeyVersion] = APIVersion
	}
	txt[TXTKeyPath] = info.Path
	if txt[TXTKeyPath] == "" {
		txt[TXTKeyPath] = APIPath
	}

	if info.HasSubscribers {
		txt[TXTKeySubscribers] = strconv.Itoa(info.Subscribers)
	}
	return txt
}

// DecodeHubTXT parses hub TXT records.
func DecodeHubTXT(txt TXTRecordMap) (*HubService, error) {
	svc := &HubService{}

	var ok bool
	svc.Version, ok = txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	svc.Path, ok = txt[TXTKeyPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyPath)
	}

	if s, ok := txt[TXTKeySubscribers]; ok {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, ErrInvalidSubscribers
		}
		svc.Subscribers = n
	}
	return svc, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings,
// sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			txt[k] = v
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidInstance)
	}
	if len(name) > MaxInstanceNameLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidInstance, MaxInstanceNameLen)
	}
	if strings.ContainsAny(name, ".\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidInstance, name)
	}
	return nil
}
