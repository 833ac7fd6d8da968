// Package discovery implements mDNS/DNS-SD discovery for rocontrol nodes.
//
// Every node advertises one service of type _rocontrol._tcp in the local
// domain. The instance name is RoControl-<node_id>, limited to the 63-byte
// DNS label length.
//
// # TXT Records
//
//	node_id  node identifier (required)
//	role     "master" or "receiver"
//	version  software version, major.minor[.patch]
//
// Records are decoded strictly. A missing node_id is an error; a role that
// is neither master nor receiver decodes to RoleUnknown rather than being
// guessed.
//
// # Removal
//
// mDNS goodbye packets may carry no TXT data. The browser remembers the
// records it has resolved and reports the node id of the removed instance;
// for instances it never resolved, the id is taken from the instance name
// by stripping the RoControl- prefix.
package discovery
