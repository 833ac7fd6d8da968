package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeNodeTXT creates TXT records for a node.
func EncodeNodeTXT(info *NodeInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyNodeID] = info.NodeID
	txt[TXTKeyRole] = info.Role.String()
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}

	return txt
}

// DecodeNodeTXT parses TXT records of a node. node_id is required. The
// returned raw role is the advertised value before decoding.
func DecodeNodeTXT(txt TXTRecordMap) (info *NodeInfo, rawRole string, err error) {
	nodeID, ok := txt[TXTKeyNodeID]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyNodeID)
	}
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return nil, "", fmt.Errorf("%w: empty %s", ErrInvalidTXTRecord, TXTKeyNodeID)
	}

	rawRole = txt[TXTKeyRole]
	return &NodeInfo{
		NodeID:  nodeID,
		Role:    ParseRole(rawRole),
		Version: txt[TXTKeyVersion],
	}, rawRole, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings,
// sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateTXTSize checks the encoded size against MaxTXTRecordSize. Each
// string costs one length byte plus its content.
func ValidateTXTSize(strs []string) error {
	size := 0
	for _, s := range strs {
		size += 1 + len(s)
	}
	if size > MaxTXTRecordSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidTXTRecord, size, MaxTXTRecordSize)
	}
	return nil
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
